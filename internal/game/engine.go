package game

import (
	"go.uber.org/zap"

	"voxelforge/internal/config"
	"voxelforge/internal/meshing"
	"voxelforge/internal/render"
	"voxelforge/internal/world"
)

// Engine composes the chunk lifecycle subsystems and splits the tick into
// background work (Update) and render-thread-only work (UpdateMainThread).
type Engine struct {
	World    *world.World
	Pipeline *meshing.Pipeline
	Upload   *render.UploadStage
	Cleanup  *render.CleanupQueue

	log *zap.Logger
}

// New wires the engine. dev must be usable on the thread that will call
// UpdateMainThread; db may be nil to run without persistence.
func New(cfg *config.Config, gen world.TerrainGenerator, db world.Persistence, player world.PlayerSource, dev render.Device, log *zap.Logger) *Engine {
	store := world.NewChunkStore(gen, log)
	if db != nil {
		store.SetPersistence(db)
	}

	pipeline := meshing.NewPipeline(store, gen,
		cfg.Meshing.Workers, cfg.Meshing.QueueSize, cfg.Meshing.MaxRetries, log)
	store.SetBuildCanceller(pipeline)

	cleanup := render.NewCleanupQueue(dev, log)
	store.SetGPUReleaser(cleanup)

	upload := render.NewUploadStage(dev, pipeline.Ready(), store, cleanup,
		cfg.Upload.MinBatch, cfg.Upload.MaxBatch, cfg.Upload.TargetFrameMs, log)

	policy := world.MemoryPolicy{
		HighThreshold:        cfg.Memory.HighThreshold,
		WarningThreshold:     cfg.Memory.WarningThreshold,
		EmergencyThreshold:   cfg.Memory.EmergencyThreshold,
		WarningEvictCap:      cfg.Memory.WarningEvictCap,
		EmergencyEvictCap:    cfg.Memory.EmergencyEvictCap,
		WarningCutoffSlack:   cfg.Memory.WarningCutoffSlack,
		EmergencyCutoffSlack: cfg.Memory.EmergencyCutoffSlack,
		GCInterval:           cfg.Memory.GCInterval,
	}
	w := world.NewWorld(store, pipeline, player, cfg.World.RenderDistance, policy, log)

	return &Engine{
		World:    w,
		Pipeline: pipeline,
		Upload:   upload,
		Cleanup:  cleanup,
		log:      log,
	}
}

// Start launches the background workers.
func (e *Engine) Start() {
	e.Pipeline.Start()
}

// Update runs one background tick.
func (e *Engine) Update(dt float64) {
	e.World.Update(dt)
}

// UpdateMainThread runs the render-thread stages: mesh uploads and deferred
// GPU teardown.
func (e *Engine) UpdateMainThread() {
	e.Upload.Drain()
	e.Cleanup.Flush(0)
}

// Shutdown stops the workers and saves outstanding edits.
func (e *Engine) Shutdown() {
	e.Pipeline.Shutdown()
	if err := e.World.FlushSaves(); err != nil {
		e.log.Error("flushing dirty chunks on shutdown failed", zap.Error(err))
	}
}
