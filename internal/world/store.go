package world

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Persistence is the external save/load collaborator. Load returns (nil, nil)
// when no chunk is stored for the position.
type Persistence interface {
	Save(c *Chunk) error
	Load(x, z int) (*Chunk, error)
}

// EntityRemover is notified when a chunk's bounds are unloaded.
type EntityRemover interface {
	RemoveEntitiesInChunk(x, z int)
}

// GPUReleaser receives GPU handles of unloaded chunks for deferred,
// render-thread-only destruction.
type GPUReleaser interface {
	Release(h GPUHandles)
}

// BuildCanceller drops any pending pipeline membership for a position.
type BuildCanceller interface {
	Cancel(pos ChunkPos)
}

// ChunkStore owns the set of loaded chunks. Reads go through an RWMutex map;
// chunk flag mutation is guarded per chunk, never by the store lock.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[int64]*Chunk

	cache *PositionCache
	gen   TerrainGenerator
	log   *zap.Logger

	// Optional collaborators, wired after construction.
	db       Persistence
	entities EntityRemover
	gpu      GPUReleaser
	builds   BuildCanceller
}

// NewChunkStore creates a store generating terrain with gen.
func NewChunkStore(gen TerrainGenerator, log *zap.Logger) *ChunkStore {
	return &ChunkStore{
		chunks: make(map[int64]*Chunk),
		cache:  NewPositionCache(1024),
		gen:    gen,
		log:    log,
	}
}

// SetPersistence wires the save/load collaborator.
func (cs *ChunkStore) SetPersistence(db Persistence) { cs.db = db }

// SetEntityRemover wires the entity-removal collaborator.
func (cs *ChunkStore) SetEntityRemover(er EntityRemover) { cs.entities = er }

// SetGPUReleaser wires the deferred GPU teardown queue.
func (cs *ChunkStore) SetGPUReleaser(g GPUReleaser) { cs.gpu = g }

// SetBuildCanceller wires the mesh pipeline for unload cancellation.
func (cs *ChunkStore) SetBuildCanceller(b BuildCanceller) { cs.builds = b }

// GetOrCreate returns the chunk at (x, z), creating it with bare terrain when
// missing. Idempotent. On generation failure no entry is registered and the
// error is returned; block queries for the position keep reading air.
func (cs *ChunkStore) GetOrCreate(x, z int) (*Chunk, error) {
	return cs.getOrCreate(x, z, false)
}

func (cs *ChunkStore) getOrCreate(x, z int, border bool) (*Chunk, error) {
	key := PackPos(x, z)
	cs.mu.RLock()
	c, ok := cs.chunks[key]
	cs.mu.RUnlock()
	if ok {
		return c, nil
	}

	// Load/generate outside the store lock so readers (worker neighbor
	// lookups included) are never stalled behind disk or terrain work.
	c, err := cs.createChunk(x, z, border)
	if err != nil {
		cs.log.Error("chunk generation failed",
			zap.Int("cx", x), zap.Int("cz", z),
			zap.Int("loaded", cs.Count()), zap.Error(err))
		return nil, err
	}

	cs.mu.Lock()
	// A concurrent caller may have won the race; its chunk is canonical
	// and ours is discarded.
	if existing, ok := cs.chunks[key]; ok {
		cs.mu.Unlock()
		return existing, nil
	}
	cs.chunks[key] = c
	cs.mu.Unlock()
	return c, nil
}

// createChunk loads from persistence when available, otherwise generates
// bare terrain synchronously. Generator panics become errors.
func (cs *ChunkStore) createChunk(x, z int, border bool) (c *Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("terrain generator panicked at (%d,%d): %v", x, z, r)
		}
	}()

	pos := cs.cache.Lookup(x, z)
	if cs.db != nil {
		loaded, loadErr := cs.db.Load(x, z)
		if loadErr != nil {
			cs.log.Warn("chunk load failed, regenerating",
				zap.Int("cx", x), zap.Int("cz", z), zap.Error(loadErr))
		} else if loaded != nil {
			loaded.Pos = pos
			return loaded, nil
		}
	}

	c = NewChunk(pos)
	if border {
		c.markBorder()
	}
	cs.gen.GenerateTerrain(c)
	return c, nil
}

// Get returns the loaded chunk at (x, z) or nil.
func (cs *ChunkStore) Get(x, z int) *Chunk {
	cs.mu.RLock()
	c := cs.chunks[PackPos(x, z)]
	cs.mu.RUnlock()
	return c
}

// Exists reports whether a chunk is loaded at (x, z).
func (cs *ChunkStore) Exists(x, z int) bool {
	cs.mu.RLock()
	_, ok := cs.chunks[PackPos(x, z)]
	cs.mu.RUnlock()
	return ok
}

// Count returns the number of loaded chunks.
func (cs *ChunkStore) Count() int {
	cs.mu.RLock()
	n := len(cs.chunks)
	cs.mu.RUnlock()
	return n
}

// AllPositions returns the positions of all loaded chunks.
func (cs *ChunkStore) AllPositions() []ChunkPos {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]ChunkPos, 0, len(cs.chunks))
	for _, c := range cs.chunks {
		out = append(out, c.Pos)
	}
	return out
}

// AllChunks returns all loaded chunks.
func (cs *ChunkStore) AllChunks() []*Chunk {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*Chunk, 0, len(cs.chunks))
	for _, c := range cs.chunks {
		out = append(out, c)
	}
	return out
}

// DirtyChunks returns all chunks with unsaved edits.
func (cs *ChunkStore) DirtyChunks() []*Chunk {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	var out []*Chunk
	for _, c := range cs.chunks {
		if c.Dirty() {
			out = append(out, c)
		}
	}
	return out
}

// BlockAt returns the block at world coordinates, air when the chunk is not
// loaded.
func (cs *ChunkStore) BlockAt(wx, wy, wz int) BlockType {
	c := cs.Get(floorDiv(wx, ChunkSize), floorDiv(wz, ChunkSize))
	if c == nil {
		return BlockTypeAir
	}
	return c.Block(mod(wx, ChunkSize), wy, mod(wz, ChunkSize))
}

// Unload removes the chunk at (x, z). A dirty chunk is saved synchronously
// first; if the save fails the chunk stays loaded and the error is returned.
// On removal any pending build membership is cancelled, entities in the
// chunk's bounds are removed and GPU handles go to the cleanup queue.
func (cs *ChunkStore) Unload(x, z int) error {
	c := cs.Get(x, z)
	if c == nil {
		return nil
	}

	if c.Dirty() {
		if cs.db == nil {
			return fmt.Errorf("chunk (%d,%d) dirty with no persistence wired", x, z)
		}
		if err := cs.db.Save(c); err != nil {
			cs.log.Error("save on unload failed, keeping chunk resident",
				zap.Int("cx", x), zap.Int("cz", z), zap.Error(err))
			return fmt.Errorf("save chunk (%d,%d): %w", x, z, err)
		}
		c.MarkSaved()
	}

	key := PackPos(x, z)
	cs.mu.Lock()
	delete(cs.chunks, key)
	cs.mu.Unlock()

	if cs.builds != nil {
		cs.builds.Cancel(c.Pos)
	}
	if cs.entities != nil {
		cs.entities.RemoveEntitiesInChunk(x, z)
	}
	if h := c.TakeHandles(); h.Valid() && cs.gpu != nil {
		cs.gpu.Release(h)
	}
	return nil
}

// PositionCache exposes the interned position cache.
func (cs *ChunkStore) PositionCache() *PositionCache { return cs.cache }

// PrunePositionCache drops cached positions with no loaded chunk, keeping the
// cache proportional to the loaded set.
func (cs *ChunkStore) PrunePositionCache() int {
	return cs.cache.Prune(func(p ChunkPos) bool {
		return cs.Exists(p.X, p.Z)
	})
}
