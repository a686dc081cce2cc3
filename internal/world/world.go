package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxelforge/internal/profiling"
)

// PlayerSource is the read-only player position collaborator.
type PlayerSource interface {
	Position() mgl32.Vec3
}

// World is the background-side facade over the chunk lifecycle: store,
// generation scheduler, neighbor coordination, memory management and
// entities. Render-thread work (upload, GPU cleanup) lives outside it.
type World struct {
	store     *ChunkStore
	sched     BuildScheduler
	genSched  *GenerationScheduler
	neighbors *NeighborCoordinator
	memory    *MemoryManager
	entities  *EntityManager
	player    PlayerSource
	log       *zap.Logger
}

// NewWorld wires the world facade. The BuildScheduler is the mesh pipeline;
// it is injected so the world side never depends on meshing internals.
func NewWorld(store *ChunkStore, sched BuildScheduler, player PlayerSource, renderDistance int, policy MemoryPolicy, log *zap.Logger) *World {
	w := &World{
		store:     store,
		sched:     sched,
		genSched:  NewGenerationScheduler(store, sched, renderDistance, log),
		neighbors: NewNeighborCoordinator(store, sched, log),
		memory:    NewMemoryManager(store, policy, renderDistance, log),
		entities:  NewEntityManager(),
		player:    player,
		log:       log,
	}
	store.SetEntityRemover(w.entities)
	return w
}

// Store returns the chunk store.
func (w *World) Store() *ChunkStore { return w.store }

// Entities returns the entity manager.
func (w *World) Entities() *EntityManager { return w.entities }

// Scheduler returns the generation scheduler.
func (w *World) Scheduler() *GenerationScheduler { return w.genSched }

// Neighbors returns the neighbor coordinator.
func (w *World) Neighbors() *NeighborCoordinator { return w.neighbors }

// PlayerChunk returns the chunk position the player currently occupies.
func (w *World) PlayerChunk() ChunkPos {
	p := w.player.Position()
	return ChunkPosAt(int(math.Floor(float64(p.X()))), int(math.Floor(float64(p.Z()))))
}

// Update runs one background tick: required-chunk scheduling, memory
// management and entity updates. Safe to call from the game loop; all heavy
// work happens on the worker pool.
func (w *World) Update(dt float64) {
	defer profiling.Track("world.Update")()
	center := w.PlayerChunk()
	w.genSched.Tick(center)
	w.memory.Tick(center)
	w.entities.Update(dt)
}

// Block returns the block at world coordinates, air for unloaded chunks.
func (w *World) Block(wx, wy, wz int) BlockType {
	return w.store.BlockAt(wx, wy, wz)
}

// SetBlock applies a player edit at world coordinates. The owning chunk is
// rebuilt at player priority and boundary edits reschedule the adjacent
// chunks so seams never appear. Edits may target chunks outside the visible
// set, so the edge-adjacent border chunks are created on demand before the
// rebuild meshes against them.
func (w *World) SetBlock(wx, wy, wz int, b BlockType) {
	pos := ChunkPosAt(wx, wz)
	c, err := w.store.GetOrCreate(pos.X, pos.Z)
	if err != nil {
		return
	}
	if !c.SetBlock(mod(wx, ChunkSize), wy, mod(wz, ChunkSize), b) {
		return
	}
	w.neighbors.EnsureBorder(pos)
	w.sched.ScheduleBuild(c, PriorityPlayer)
	w.neighbors.BlockEdited(wx, wy, wz)
}

// PerformMemoryManagement forces a memory pass outside the regular tick.
func (w *World) PerformMemoryManagement() int {
	return w.memory.Tick(w.PlayerChunk())
}

// FlushSaves saves every dirty chunk, for shutdown. Returns the first error.
func (w *World) FlushSaves() error {
	var firstErr error
	for _, c := range w.store.DirtyChunks() {
		if w.store.db == nil {
			break
		}
		if err := w.store.db.Save(c); err != nil {
			w.log.Error("shutdown save failed",
				zap.Int("cx", c.Pos.X), zap.Int("cz", c.Pos.Z), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.MarkSaved()
	}
	return firstErr
}
