package render

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"voxelforge/internal/meshing"
	"voxelforge/internal/world"
)

var _ world.GPUReleaser = (*CleanupQueue)(nil)

// fakeDevice counts uploads and records releases; the first failNext uploads
// return an error.
type fakeDevice struct {
	mu       sync.Mutex
	uploads  int
	failNext int
	released []world.GPUHandles
	next     uint32
}

func (d *fakeDevice) UploadMesh(m *meshing.Mesh) (world.GPUHandles, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads++
	if d.failNext > 0 {
		d.failNext--
		return world.GPUHandles{}, errors.New("gl out of memory")
	}
	d.next++
	return world.GPUHandles{VAO: d.next, VBO: d.next, VertexCount: int32(m.VertexCount())}, nil
}

func (d *fakeDevice) ReleaseMesh(h world.GPUHandles) {
	d.mu.Lock()
	d.released = append(d.released, h)
	d.mu.Unlock()
}

func (d *fakeDevice) uploadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}

// readyChunk creates a chunk in the ReadyForUpload state.
func readyChunk(t *testing.T, store *world.ChunkStore, x, z int) *world.Chunk {
	t.Helper()
	c, err := store.GetOrCreate(x, z)
	if err != nil {
		t.Fatalf("GetOrCreate(%d,%d): %v", x, z, err)
	}
	if !c.FeaturesPopulated() {
		c.TryBeginPopulate()
		c.FinishPopulate(true)
	}
	if !c.MarkScheduled() || !c.BeginBuild() {
		t.Fatalf("chunk (%d,%d) refused build transitions", x, z)
	}
	c.FinishBuild(true)
	return c
}

func uploadFixture(t *testing.T, minBatch, maxBatch int) (*UploadStage, *fakeDevice, chan meshing.Result, *world.ChunkStore, *CleanupQueue) {
	t.Helper()
	dev := &fakeDevice{}
	store := world.NewChunkStore(world.NewFlatGenerator(4), zap.NewNop())
	cleanup := NewCleanupQueue(dev, zap.NewNop())
	ready := make(chan meshing.Result, 64)
	stage := NewUploadStage(dev, ready, store, cleanup, minBatch, maxBatch, 16.6, zap.NewNop())
	return stage, dev, ready, store, cleanup
}

func TestDrainRespectsBatchBudget(t *testing.T) {
	stage, dev, ready, store, _ := uploadFixture(t, 1, 2)

	for i := 0; i < 5; i++ {
		c := readyChunk(t, store, i, 0)
		ready <- meshing.Result{Chunk: c, Mesh: &meshing.Mesh{Verts: []uint32{1, 2}}}
	}

	if n := stage.Drain(); n != 2 {
		t.Fatalf("first drain uploaded %d, want 2", n)
	}
	if len(ready) != 3 {
		t.Fatalf("ready backlog = %d, want 3", len(ready))
	}
	if dev.uploadCount() != 2 {
		t.Fatalf("device uploads = %d, want 2", dev.uploadCount())
	}
	if store.Get(0, 0).MeshState() != world.MeshUploaded {
		t.Fatal("first chunk not uploaded")
	}
	if store.Get(2, 0).MeshState() != world.MeshReadyForUpload {
		t.Fatal("chunk past the budget must stay pending")
	}
}

func TestDrainStopsOnEmptyQueue(t *testing.T) {
	stage, dev, ready, store, _ := uploadFixture(t, 1, 8)

	c := readyChunk(t, store, 0, 0)
	ready <- meshing.Result{Chunk: c, Mesh: &meshing.Mesh{Verts: []uint32{1, 2}}}

	if n := stage.Drain(); n != 1 {
		t.Fatalf("drained %d, want 1", n)
	}
	if n := stage.Drain(); n != 0 {
		t.Fatalf("empty drain uploaded %d", n)
	}
	if dev.uploadCount() != 1 {
		t.Fatalf("device uploads = %d, want 1", dev.uploadCount())
	}
}

func TestUploadFailureSkipsChunkButContinuesBatch(t *testing.T) {
	stage, dev, ready, store, _ := uploadFixture(t, 1, 8)
	dev.failNext = 1

	a := readyChunk(t, store, 0, 0)
	b := readyChunk(t, store, 1, 0)
	ready <- meshing.Result{Chunk: a, Mesh: &meshing.Mesh{Verts: []uint32{1, 2}}}
	ready <- meshing.Result{Chunk: b, Mesh: &meshing.Mesh{Verts: []uint32{1, 2}}}

	if n := stage.Drain(); n != 1 {
		t.Fatalf("drained %d, want 1 surviving upload", n)
	}
	if a.MeshState() != world.MeshUnbuilt {
		t.Fatalf("failed chunk state = %v, want unbuilt for re-trigger", a.MeshState())
	}
	if a.Handles().Valid() {
		t.Fatal("failed upload must not install handles")
	}
	if b.MeshState() != world.MeshUploaded {
		t.Fatalf("second chunk state = %v, want uploaded", b.MeshState())
	}
}

func TestUploadSkipsUnloadedChunk(t *testing.T) {
	stage, dev, ready, _, _ := uploadFixture(t, 1, 8)

	// A chunk that was never registered with the store.
	orphan := world.NewChunk(world.ChunkPos{X: 9, Z: 9})
	ready <- meshing.Result{Chunk: orphan, Mesh: &meshing.Mesh{Verts: []uint32{1, 2}}}

	if n := stage.Drain(); n != 0 {
		t.Fatalf("drained %d, want 0", n)
	}
	if dev.uploadCount() != 0 {
		t.Fatal("device touched for an unloaded chunk")
	}
}

func TestReuploadQueuesStaleHandlesForCleanup(t *testing.T) {
	stage, dev, ready, store, cleanup := uploadFixture(t, 1, 8)

	c := readyChunk(t, store, 0, 0)
	ready <- meshing.Result{Chunk: c, Mesh: &meshing.Mesh{Verts: []uint32{1, 2}}}
	stage.Drain()
	first := c.Handles()

	// Rebuild after an edit and upload again.
	c.SetBlock(0, 10, 0, world.BlockTypeStone)
	if !c.MarkScheduled() || !c.BeginBuild() {
		t.Fatal("rebuild transitions refused")
	}
	c.FinishBuild(true)
	ready <- meshing.Result{Chunk: c, Mesh: &meshing.Mesh{Verts: []uint32{3, 4}}}
	stage.Drain()

	if c.Handles() == first {
		t.Fatal("re-upload did not install fresh handles")
	}
	if cleanup.Len() != 1 {
		t.Fatalf("cleanup queue length = %d, want 1 stale handle set", cleanup.Len())
	}
	if n := cleanup.Flush(0); n != 1 {
		t.Fatalf("flushed %d, want 1", n)
	}
	if len(dev.released) != 1 || dev.released[0] != first {
		t.Fatalf("released handles = %v, want %v", dev.released, first)
	}
}

func TestBatchBudgetAdaptsToFrameTime(t *testing.T) {
	stage, _, _, _, _ := uploadFixture(t, 2, 16)

	// On target: full budget.
	if b := stage.batchBudget(0); b != 16 {
		t.Fatalf("on-target budget = %d, want 16", b)
	}

	// Running at twice the target frame time halves the cap.
	stage.frameEWMA = 33.2
	if b := stage.batchBudget(0); b != 8 {
		t.Fatalf("slow-frame budget = %d, want 8", b)
	}

	// A deep backlog bumps the budget but never past maxBatch.
	if b := stage.batchBudget(1024); b != 16 {
		t.Fatalf("backlog budget = %d, want clamp at 16", b)
	}

	// The floor is minBatch no matter how slow the frames get.
	stage.frameEWMA = 1000
	if b := stage.batchBudget(0); b != 2 {
		t.Fatalf("floor budget = %d, want 2", b)
	}
}

func TestCleanupQueueFlushLimit(t *testing.T) {
	dev := &fakeDevice{}
	q := NewCleanupQueue(dev, zap.NewNop())

	for i := uint32(1); i <= 5; i++ {
		q.Enqueue(world.GPUHandles{VAO: i, VBO: i})
	}
	q.Enqueue(world.GPUHandles{}) // invalid, dropped

	if q.Len() != 5 {
		t.Fatalf("queue length = %d, want 5", q.Len())
	}
	if n := q.Flush(2); n != 2 {
		t.Fatalf("limited flush = %d, want 2", n)
	}
	if q.Len() != 3 {
		t.Fatalf("queue length after limited flush = %d, want 3", q.Len())
	}
	if n := q.Flush(0); n != 3 {
		t.Fatalf("full flush = %d, want 3", n)
	}
	if len(dev.released) != 5 {
		t.Fatalf("released = %d handles, want 5", len(dev.released))
	}
	// Oldest first.
	if dev.released[0].VAO != 1 || dev.released[4].VAO != 5 {
		t.Fatalf("release order wrong: %v", dev.released)
	}
}
