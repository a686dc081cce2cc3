package render

import (
	"sync"

	"go.uber.org/zap"

	"voxelforge/internal/world"
)

// CleanupQueue defers destruction of GPU resources to the render thread.
// Any goroutine may enqueue handles (the store does so on unload); only the
// render thread flushes. Implements world.GPUReleaser.
type CleanupQueue struct {
	mu      sync.Mutex
	handles []world.GPUHandles

	dev Device
	log *zap.Logger
}

// NewCleanupQueue creates a queue deleting through dev.
func NewCleanupQueue(dev Device, log *zap.Logger) *CleanupQueue {
	return &CleanupQueue{dev: dev, log: log}
}

// Release queues handles for deferred destruction. Safe from any goroutine.
func (q *CleanupQueue) Release(h world.GPUHandles) {
	q.Enqueue(h)
}

// Enqueue adds handles to the pending teardown list.
func (q *CleanupQueue) Enqueue(h world.GPUHandles) {
	if !h.Valid() {
		return
	}
	q.mu.Lock()
	q.handles = append(q.handles, h)
	q.mu.Unlock()
}

// Len returns the number of pending teardowns.
func (q *CleanupQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handles)
}

// Flush destroys up to limit pending handles. Render thread only; limit <= 0
// flushes everything.
func (q *CleanupQueue) Flush(limit int) int {
	q.mu.Lock()
	n := len(q.handles)
	if limit > 0 && n > limit {
		n = limit
	}
	batch := make([]world.GPUHandles, n)
	copy(batch, q.handles[:n])
	q.handles = q.handles[:copy(q.handles, q.handles[n:])]
	q.mu.Unlock()

	for _, h := range batch {
		q.dev.ReleaseMesh(h)
	}
	return n
}
