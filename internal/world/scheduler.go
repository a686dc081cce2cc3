package world

import (
	"go.uber.org/zap"

	"voxelforge/internal/profiling"
)

// BuildPriority orders competing mesh builds. Higher tiers are drained first.
type BuildPriority uint8

const (
	PriorityNormal BuildPriority = iota
	PriorityNeighbor
	PriorityPlayer
)

func (p BuildPriority) String() string {
	switch p {
	case PriorityPlayer:
		return "player"
	case PriorityNeighbor:
		return "neighbor"
	}
	return "normal"
}

// BuildScheduler is the mesh pipeline surface the world side drives.
type BuildScheduler interface {
	// ScheduleBuild queues a mesh build; returns false when the chunk is
	// unpopulated, already scheduled/building, or the queue is saturated.
	ScheduleBuild(c *Chunk, p BuildPriority) bool
	// SchedulePopulate queues the feature pass for a chunk.
	SchedulePopulate(c *Chunk) bool
	// RetryFailed gives every retry-eligible failed chunk one more attempt.
	RetryFailed()
	// Cancel drops pending membership and retry tracking for a position.
	Cancel(pos ChunkPos)
}

// GenerationScheduler decides which chunk positions must exist around the
// player and drives population and mesh scheduling for them. Visible chunks
// (Chebyshev distance <= render distance) are populated and meshed; the ring
// one past the render distance exists bare only, so neighbor lookups during
// meshing never fail and border generation cannot cascade.
type GenerationScheduler struct {
	store *ChunkStore
	sched BuildScheduler
	log   *zap.Logger

	renderDistance int
	// Cap on normal-priority builds handed over in one pass, so a teleport
	// does not flood the queue in a single tick.
	maxBuildsPerPass int
}

// NewGenerationScheduler creates a scheduler for the given render distance.
func NewGenerationScheduler(store *ChunkStore, sched BuildScheduler, renderDistance int, log *zap.Logger) *GenerationScheduler {
	return &GenerationScheduler{
		store:            store,
		sched:            sched,
		log:              log,
		renderDistance:   renderDistance,
		maxBuildsPerPass: 128,
	}
}

// RenderDistance returns the configured render distance in chunks.
func (g *GenerationScheduler) RenderDistance() int { return g.renderDistance }

// RequiredPositions computes the visible set (Chebyshev <= r) and the bare
// border ring (Chebyshev == r+1) around center, nearest ring first.
func (g *GenerationScheduler) RequiredPositions(center ChunkPos) (visible, border []ChunkPos) {
	r := g.renderDistance
	visible = make([]ChunkPos, 0, (2*r+1)*(2*r+1))
	visible = append(visible, center)
	for ring := 1; ring <= r+1; ring++ {
		dst := &visible
		if ring == r+1 {
			dst = &border
		}
		x0, x1 := center.X-ring, center.X+ring
		z0, z1 := center.Z-ring, center.Z+ring
		for x := x0; x <= x1; x++ {
			*dst = append(*dst, ChunkPos{X: x, Z: z0})
		}
		for z := z0 + 1; z <= z1-1; z++ {
			*dst = append(*dst, ChunkPos{X: x1, Z: z})
		}
		for x := x1; x >= x0; x-- {
			*dst = append(*dst, ChunkPos{X: x, Z: z1})
		}
		for z := z1 - 1; z >= z0+1; z-- {
			*dst = append(*dst, ChunkPos{X: x0, Z: z})
		}
	}
	return visible, border
}

// Tick ensures required chunks exist, promotes border chunks that entered
// the visible set, schedules population and normal-priority builds, and runs
// one retry pass for failed builds.
func (g *GenerationScheduler) Tick(player ChunkPos) {
	defer profiling.Track("world.SchedulerTick")()

	visible, border := g.RequiredPositions(player)

	builds := 0
	for _, pos := range visible {
		c, err := g.store.GetOrCreate(pos.X, pos.Z)
		if err != nil {
			// Already logged by the store; position stays unregistered.
			continue
		}
		if c.IsBorder() {
			c.promote()
		}
		if !c.FeaturesPopulated() {
			g.sched.SchedulePopulate(c)
			continue
		}
		if builds < g.maxBuildsPerPass && c.MeshState() == MeshUnbuilt {
			if g.sched.ScheduleBuild(c, PriorityNormal) {
				builds++
			}
		}
	}

	// Border ring: bare terrain only, never populated, never meshed.
	for _, pos := range border {
		if g.store.Exists(pos.X, pos.Z) {
			continue
		}
		if _, err := g.store.getOrCreate(pos.X, pos.Z, true); err != nil {
			continue
		}
	}

	g.sched.RetryFailed()
}
