package render

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"voxelforge/internal/meshing"
	"voxelforge/internal/profiling"
	"voxelforge/internal/world"
)

// UploadStage is the render-thread consumer of the mesh pipeline's ready
// queue. Each frame it applies a bounded batch of completed meshes to GPU
// buffers; the batch size adapts to recent frame time and queue depth so a
// burst of finished builds cannot spike a frame.
type UploadStage struct {
	dev     Device
	ready   <-chan meshing.Result
	store   *world.ChunkStore
	cleanup *CleanupQueue
	log     *zap.Logger

	minBatch      int
	maxBatch      int
	targetFrameMs float64

	frameEWMA float64
	lastFrame time.Time
}

// NewUploadStage creates an upload stage draining ready into dev.
func NewUploadStage(dev Device, ready <-chan meshing.Result, store *world.ChunkStore, cleanup *CleanupQueue, minBatch, maxBatch int, targetFrameMs float64, log *zap.Logger) *UploadStage {
	if minBatch < 1 {
		minBatch = 1
	}
	if maxBatch < minBatch {
		maxBatch = minBatch
	}
	if targetFrameMs <= 0 {
		targetFrameMs = 16.6
	}
	return &UploadStage{
		dev:           dev,
		ready:         ready,
		store:         store,
		cleanup:       cleanup,
		log:           log,
		minBatch:      minBatch,
		maxBatch:      maxBatch,
		targetFrameMs: targetFrameMs,
		frameEWMA:     targetFrameMs,
	}
}

// batchBudget derives this frame's upload cap from the frame-time EWMA and
// the current backlog.
func (u *UploadStage) batchBudget(queueDepth int) int {
	budget := u.maxBatch
	if u.frameEWMA > u.targetFrameMs {
		// Running slow: scale the cap down proportionally.
		budget = int(float64(u.maxBatch) * u.targetFrameMs / u.frameEWMA)
	}
	// A deep backlog earns a modest bump so the queue cannot grow unbounded.
	budget += queueDepth / 64
	if budget < u.minBatch {
		budget = u.minBatch
	}
	if budget > u.maxBatch {
		budget = u.maxBatch
	}
	return budget
}

// observeFrame folds the elapsed wall time since the previous call into the
// frame-time EWMA.
func (u *UploadStage) observeFrame(now time.Time) {
	if !u.lastFrame.IsZero() {
		ms := float64(now.Sub(u.lastFrame).Microseconds()) / 1000.0
		u.frameEWMA = u.frameEWMA*0.9 + ms*0.1
	}
	u.lastFrame = now
}

// Drain applies up to the frame budget of ready meshes. Render thread only.
// Returns the number of chunks uploaded.
func (u *UploadStage) Drain() int {
	defer profiling.Track("render.UploadDrain")()
	u.observeFrame(time.Now())

	budget := u.batchBudget(len(u.ready))
	uploaded := 0
	for i := 0; i < budget; i++ {
		var res meshing.Result
		select {
		case res = <-u.ready:
		default:
			return uploaded
		}
		if u.apply(res) {
			uploaded++
		}
	}
	return uploaded
}

// apply uploads one result. A failure is logged with context and skipped;
// the batch continues and the chunk drops back to Unbuilt so a later pass
// can re-trigger it.
func (u *UploadStage) apply(res meshing.Result) bool {
	c := res.Chunk
	if !u.store.Exists(c.Pos.X, c.Pos.Z) {
		// Unloaded while queued; nothing to free, mesh is CPU-side only.
		return false
	}

	handles, err := u.dev.UploadMesh(res.Mesh)
	if err != nil {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		u.log.Error("mesh upload failed, skipping chunk",
			zap.Int("cx", c.Pos.X), zap.Int("cz", c.Pos.Z),
			zap.Int("verts", res.Mesh.VertexCount()),
			zap.Int("ready_depth", len(u.ready)),
			zap.Uint64("heap_alloc_mb", ms.HeapAlloc>>20),
			zap.Error(err))
		c.ResetMesh()
		return false
	}

	old, applied := c.MarkUploaded(handles)
	if old.Valid() {
		// Replaced a previous upload; defer the stale buffers.
		u.cleanup.Enqueue(old)
	}
	if !applied {
		u.log.Debug("upload superseded by newer edit",
			zap.Int("cx", c.Pos.X), zap.Int("cz", c.Pos.Z))
	}
	return true
}
