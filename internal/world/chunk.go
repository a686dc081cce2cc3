package world

import (
	"sync"
)

const (
	// Chunk dimensions: full-height columns keyed by (X, Z).
	ChunkSize   = 16
	WorldHeight = 128

	ChunkVolume = ChunkSize * ChunkSize * WorldHeight
)

// MeshState tracks a chunk through the build pipeline.
type MeshState uint8

const (
	MeshUnbuilt MeshState = iota
	MeshScheduled
	MeshBuilding
	MeshReadyForUpload
	MeshUploaded
	MeshFailed
)

func (s MeshState) String() string {
	switch s {
	case MeshUnbuilt:
		return "unbuilt"
	case MeshScheduled:
		return "scheduled"
	case MeshBuilding:
		return "building"
	case MeshReadyForUpload:
		return "ready"
	case MeshUploaded:
		return "uploaded"
	case MeshFailed:
		return "failed"
	}
	return "unknown"
}

// GPUHandles are the GL object names backing an uploaded chunk mesh.
// They are created and destroyed only on the render thread.
type GPUHandles struct {
	VAO         uint32
	VBO         uint32
	VertexCount int32
}

// Valid reports whether the handles reference live GL objects.
func (h GPUHandles) Valid() bool {
	return h.VAO != 0 || h.VBO != 0
}

// Chunk is a full-height column of blocks plus the lifecycle flags the
// pipeline operates on. All flag mutation happens under the per-chunk mutex;
// at most one worker may hold Scheduled/Building for a chunk at any time.
type Chunk struct {
	Pos ChunkPos

	mu     sync.Mutex
	blocks [ChunkVolume]BlockType

	meshState      MeshState
	featuresFilled bool
	populating     bool
	border         bool
	dirty          bool
	// Set when an edit lands while a build is in flight; the stale result is
	// still applied and the chunk drops back to Unbuilt for rescheduling.
	rebuildPending bool

	handles GPUHandles
}

// NewChunk creates an empty chunk at the given position.
func NewChunk(pos ChunkPos) *Chunk {
	return &Chunk{Pos: pos}
}

// NewChunkFromData reconstructs a chunk loaded from persistence.
func NewChunkFromData(pos ChunkPos, blocks []BlockType, populated bool) *Chunk {
	c := &Chunk{Pos: pos, featuresFilled: populated}
	copy(c.blocks[:], blocks)
	return c
}

func blockIndex(x, y, z int) int {
	return (x*ChunkSize+z)*WorldHeight + y
}

// Block returns the block at local coordinates, air when out of bounds.
func (c *Chunk) Block(x, y, z int) BlockType {
	if x < 0 || x >= ChunkSize || y < 0 || y >= WorldHeight || z < 0 || z >= ChunkSize {
		return BlockTypeAir
	}
	c.mu.Lock()
	b := c.blocks[blockIndex(x, y, z)]
	c.mu.Unlock()
	return b
}

// SetBlock writes a block at local coordinates as a post-generation edit:
// the chunk is marked dirty and its mesh drops back to Unbuilt. Returns
// whether the block actually changed.
func (c *Chunk) SetBlock(x, y, z int, b BlockType) bool {
	if x < 0 || x >= ChunkSize || y < 0 || y >= WorldHeight || z < 0 || z >= ChunkSize {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := blockIndex(x, y, z)
	if c.blocks[idx] == b {
		return false
	}
	c.blocks[idx] = b
	c.dirty = true
	c.resetMeshLocked()
	return true
}

// setBlockGenerated writes during terrain generation or feature population
// without touching the dirty flag.
func (c *Chunk) setBlockGenerated(x, y, z int, b BlockType) {
	if x < 0 || x >= ChunkSize || y < 0 || y >= WorldHeight || z < 0 || z >= ChunkSize {
		return
	}
	c.mu.Lock()
	c.blocks[blockIndex(x, y, z)] = b
	c.mu.Unlock()
}

// Snapshot copies the block array for a mesh build so workers never read a
// concurrently mutated array.
func (c *Chunk) Snapshot() []BlockType {
	dst := make([]BlockType, ChunkVolume)
	c.mu.Lock()
	copy(dst, c.blocks[:])
	c.mu.Unlock()
	return dst
}

// MeshState returns the current mesh pipeline state.
func (c *Chunk) MeshState() MeshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meshState
}

// Dirty reports whether the chunk has unsaved post-generation edits.
func (c *Chunk) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// MarkSaved clears the dirty flag after a successful save.
func (c *Chunk) MarkSaved() {
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
}

// FeaturesPopulated reports whether the feature pass has run.
func (c *Chunk) FeaturesPopulated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.featuresFilled
}

// IsBorder reports whether the chunk exists only to support neighbor meshing.
func (c *Chunk) IsBorder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.border
}

func (c *Chunk) markBorder() {
	c.mu.Lock()
	c.border = true
	c.mu.Unlock()
}

// promote clears the border flag once the chunk enters the visible set.
func (c *Chunk) promote() {
	c.mu.Lock()
	c.border = false
	c.mu.Unlock()
}

// TryBeginPopulate claims the feature pass for this chunk. Only one
// population job may be queued or running at a time.
func (c *Chunk) TryBeginPopulate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.featuresFilled || c.populating {
		return false
	}
	c.populating = true
	return true
}

// FinishPopulate releases the population claim. On success the chunk leaves
// border status and becomes eligible for mesh builds.
func (c *Chunk) FinishPopulate(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.populating = false
	if ok {
		c.featuresFilled = true
		c.border = false
		c.meshState = MeshUnbuilt
	}
}

// MarkScheduled moves Unbuilt/Failed to Scheduled. Returns false when the
// chunk is unpopulated or a build is already scheduled or in flight.
func (c *Chunk) MarkScheduled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.featuresFilled {
		return false
	}
	if c.meshState != MeshUnbuilt && c.meshState != MeshFailed {
		return false
	}
	c.meshState = MeshScheduled
	return true
}

// Unschedule rolls Scheduled back to Unbuilt when a queue push fails.
func (c *Chunk) Unschedule() {
	c.mu.Lock()
	if c.meshState == MeshScheduled {
		c.meshState = MeshUnbuilt
	}
	c.mu.Unlock()
}

// BeginBuild moves Scheduled to Building as a worker picks the chunk up.
func (c *Chunk) BeginBuild() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meshState != MeshScheduled {
		return false
	}
	c.meshState = MeshBuilding
	return true
}

// FinishBuild records the outcome of a build. On success it returns whether
// the chunk must be rescheduled because an edit landed mid-build; the stale
// result is still handed to the upload stage either way.
func (c *Chunk) FinishBuild(ok bool) (reschedule bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.meshState = MeshFailed
		c.rebuildPending = false
		return false
	}
	if c.rebuildPending {
		c.rebuildPending = false
		c.meshState = MeshUnbuilt
		return true
	}
	c.meshState = MeshReadyForUpload
	return false
}

// MarkUploaded stores fresh GPU handles and returns the previous handles for
// deferred deletion. applied is false when the result was superseded by a
// newer edit; the geometry is still shown but the state stays pending.
func (c *Chunk) MarkUploaded(h GPUHandles) (old GPUHandles, applied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old = c.handles
	c.handles = h
	if c.meshState == MeshReadyForUpload {
		c.meshState = MeshUploaded
		return old, true
	}
	return old, false
}

// Handles returns the current GPU handles.
func (c *Chunk) Handles() GPUHandles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles
}

// TakeHandles clears and returns the GPU handles for cleanup on unload.
func (c *Chunk) TakeHandles() GPUHandles {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handles
	c.handles = GPUHandles{}
	return h
}

// ResetMesh forces the chunk back to Unbuilt so the pipeline re-triggers.
// A build in flight keeps running; its result is applied then superseded.
func (c *Chunk) ResetMesh() {
	c.mu.Lock()
	c.resetMeshLocked()
	c.mu.Unlock()
}

func (c *Chunk) resetMeshLocked() {
	switch c.meshState {
	case MeshBuilding:
		c.rebuildPending = true
	case MeshScheduled:
		// Already queued; the worker will see the new data.
	default:
		c.meshState = MeshUnbuilt
	}
}
