package world

import (
	"go.uber.org/zap"
)

// NeighborCoordinator keeps chunk seams consistent: when a block edit lands
// on a chunk boundary, the chunks sharing that edge are rebuilt at neighbor
// priority instead of every chunk re-examining its neighbors each frame.
type NeighborCoordinator struct {
	store *ChunkStore
	sched BuildScheduler
	log   *zap.Logger
}

// NewNeighborCoordinator creates a coordinator over the given store.
func NewNeighborCoordinator(store *ChunkStore, sched BuildScheduler, log *zap.Logger) *NeighborCoordinator {
	return &NeighborCoordinator{store: store, sched: sched, log: log}
}

// BlockEdited reschedules the chunks adjacent to an edited boundary block.
// Non-boundary edits are a no-op.
func (n *NeighborCoordinator) BlockEdited(wx, wy, wz int) {
	pos := ChunkPosAt(wx, wz)
	localX := mod(wx, ChunkSize)
	localZ := mod(wz, ChunkSize)

	if localX == 0 {
		n.rebuild(pos.X-1, pos.Z)
	}
	if localX == ChunkSize-1 {
		n.rebuild(pos.X+1, pos.Z)
	}
	if localZ == 0 {
		n.rebuild(pos.X, pos.Z-1)
	}
	if localZ == ChunkSize-1 {
		n.rebuild(pos.X, pos.Z+1)
	}
}

func (n *NeighborCoordinator) rebuild(cx, cz int) {
	c := n.store.Get(cx, cz)
	if c == nil || !c.FeaturesPopulated() {
		return
	}
	c.ResetMesh()
	n.sched.ScheduleBuild(c, PriorityNeighbor)
}

// EnsureBorder creates the four edge-adjacent chunks of pos as bare border
// chunks so meshing the chunk at pos never misses a neighbor lookup.
func (n *NeighborCoordinator) EnsureBorder(pos ChunkPos) {
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		x, z := pos.X+d[0], pos.Z+d[1]
		if n.store.Exists(x, z) {
			continue
		}
		if _, err := n.store.getOrCreate(x, z, true); err != nil {
			n.log.Warn("border chunk generation failed",
				zap.Int("cx", x), zap.Int("cz", z), zap.Error(err))
		}
	}
}
