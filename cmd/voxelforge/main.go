package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"voxelforge/internal/config"
	"voxelforge/internal/game"
	"voxelforge/internal/persist"
	"voxelforge/internal/player"
	"voxelforge/internal/profiling"
	"voxelforge/internal/render"
	"voxelforge/internal/world"
)

func init() {
	// The GL context and upload stage are bound to the main thread.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "voxelforge.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	defer glfw.Terminate()

	window, err := setupWindow()
	if err != nil {
		return err
	}
	if err := gl.Init(); err != nil {
		return fmt.Errorf("init gl: %w", err)
	}

	db, err := persist.Open(cfg.World.DataDir, log)
	if err != nil {
		return err
	}
	defer db.Close()

	gen := world.NewGenerator(cfg.World.Seed)
	spawnHeight := float32(gen.HeightAt(0, 0)) + 2
	p := player.New(mgl32.Vec3{0, spawnHeight, 0})

	engine := game.New(cfg, gen, db, p, render.NewGLDevice(), log)
	engine.Start()
	defer engine.Shutdown()

	log.Info("engine started",
		zap.Int("render_distance", cfg.World.RenderDistance),
		zap.Int64("seed", cfg.World.Seed))

	limiter := newFrameLimiter(120)
	last := time.Now()
	for !window.ShouldClose() {
		profiling.ResetFrame()
		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		glfw.PollEvents()
		movePlayer(window, p, dt)

		engine.Update(dt)
		engine.UpdateMainThread()

		gl.ClearColor(0.53, 0.71, 0.92, 1.0)
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		window.SwapBuffers()
		limiter.wait()
	}
	return nil
}

func setupWindow() (*glfw.Window, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	window, err := glfw.CreateWindow(900, 600, "voxelforge", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	window.MakeContextCurrent()
	glfw.SwapInterval(1)
	return window, nil
}

// movePlayer applies simple fly movement so chunk streaming can be driven
// interactively.
func movePlayer(window *glfw.Window, p *player.Player, dt float64) {
	const speed = 24.0
	step := float32(speed * dt)
	var delta mgl32.Vec3
	if window.GetKey(glfw.KeyW) == glfw.Press {
		delta[2] -= step
	}
	if window.GetKey(glfw.KeyS) == glfw.Press {
		delta[2] += step
	}
	if window.GetKey(glfw.KeyA) == glfw.Press {
		delta[0] -= step
	}
	if window.GetKey(glfw.KeyD) == glfw.Press {
		delta[0] += step
	}
	if window.GetKey(glfw.KeySpace) == glfw.Press {
		delta[1] += step
	}
	if window.GetKey(glfw.KeyLeftShift) == glfw.Press {
		delta[1] -= step
	}
	if delta != (mgl32.Vec3{}) {
		p.Move(delta)
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
