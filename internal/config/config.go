package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full engine configuration, loaded from TOML.
type Config struct {
	World   WorldConfig   `toml:"world"`
	Meshing MeshingConfig `toml:"meshing"`
	Upload  UploadConfig  `toml:"upload"`
	Memory  MemoryConfig  `toml:"memory"`
	Logging LoggingConfig `toml:"logging"`
}

type WorldConfig struct {
	Seed           int64  `toml:"seed"`
	RenderDistance int    `toml:"render_distance"` // in chunks
	DataDir        string `toml:"data_dir"`
}

type MeshingConfig struct {
	Workers    int `toml:"workers"` // 0 = max(1, cores/2)
	QueueSize  int `toml:"queue_size"`
	MaxRetries int `toml:"max_retries"`
}

type UploadConfig struct {
	MinBatch      int     `toml:"min_batch"`
	MaxBatch      int     `toml:"max_batch"`
	TargetFrameMs float64 `toml:"target_frame_ms"`
}

type MemoryConfig struct {
	HighThreshold        int `toml:"high_threshold"`
	WarningThreshold     int `toml:"warning_threshold"`
	EmergencyThreshold   int `toml:"emergency_threshold"`
	WarningEvictCap      int `toml:"warning_evict_cap"`
	EmergencyEvictCap    int `toml:"emergency_evict_cap"`
	WarningCutoffSlack   int `toml:"warning_cutoff_slack"`
	EmergencyCutoffSlack int `toml:"emergency_cutoff_slack"`
	GCInterval           int `toml:"gc_interval"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Seed:           1,
			RenderDistance: 8,
			DataDir:        "data",
		},
		Meshing: MeshingConfig{
			Workers:    0,
			QueueSize:  1024,
			MaxRetries: 3,
		},
		Upload: UploadConfig{
			MinBatch:      1,
			MaxBatch:      16,
			TargetFrameMs: 16.6,
		},
		Memory: MemoryConfig{
			HighThreshold:        400,
			WarningThreshold:     500,
			EmergencyThreshold:   700,
			WarningEvictCap:      200,
			EmergencyEvictCap:    400,
			WarningCutoffSlack:   4,
			EmergencyCutoffSlack: 1,
			GCInterval:           8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the TOML file at path on top of the defaults and clamps the
// result to sane ranges.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.clamp()
	return cfg, nil
}

// clamp bounds every tunable to a workable range.
func (c *Config) clamp() {
	c.World.RenderDistance = clampInt(c.World.RenderDistance, 2, 32)
	c.Meshing.QueueSize = clampInt(c.Meshing.QueueSize, 64, 16384)
	c.Meshing.MaxRetries = clampInt(c.Meshing.MaxRetries, 1, 10)
	c.Upload.MinBatch = clampInt(c.Upload.MinBatch, 1, 64)
	c.Upload.MaxBatch = clampInt(c.Upload.MaxBatch, c.Upload.MinBatch, 64)
	if c.Upload.TargetFrameMs <= 0 {
		c.Upload.TargetFrameMs = 16.6
	}
	if c.Memory.WarningThreshold < c.Memory.HighThreshold {
		c.Memory.WarningThreshold = c.Memory.HighThreshold
	}
	if c.Memory.EmergencyThreshold < c.Memory.WarningThreshold {
		c.Memory.EmergencyThreshold = c.Memory.WarningThreshold
	}
	if c.World.DataDir == "" {
		c.World.DataDir = "data"
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
