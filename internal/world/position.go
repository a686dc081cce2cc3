package world

import (
	"sync"

	"github.com/brentp/intintmap"
)

// ChunkPos identifies a chunk column by its integer chunk coordinates.
type ChunkPos struct {
	X, Z int
}

// Key packs the position into a single int64, suitable for map keys that
// must stay stable across chunk object replacement.
func (p ChunkPos) Key() int64 {
	return PackPos(p.X, p.Z)
}

// Chebyshev returns max(|dx|,|dz|) to the other position.
func (p ChunkPos) Chebyshev(o ChunkPos) int {
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := p.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// PackPos packs two chunk coordinates into one int64 key.
func PackPos(x, z int) int64 {
	return int64(uint64(uint32(int32(x)))<<32 | uint64(uint32(int32(z))))
}

// UnpackPos is the inverse of PackPos.
func UnpackPos(key int64) (int, int) {
	return int(int32(uint64(key) >> 32)), int(int32(uint64(key) & 0xFFFFFFFF))
}

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// mod returns the non-negative remainder of a/b.
func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ChunkPosAt returns the chunk position containing world block (x, z).
func ChunkPosAt(x, z int) ChunkPos {
	return ChunkPos{X: floorDiv(x, ChunkSize), Z: floorDiv(z, ChunkSize)}
}

// PositionCache interns ChunkPos handles behind packed int64 keys so hot
// paths reuse a stable handle instead of rehashing coordinate pairs. It is
// pruned against the loaded-chunk set so its size stays proportional to it.
type PositionCache struct {
	mu    sync.Mutex
	index *intintmap.Map // packed key -> arena index
	arena []ChunkPos
}

// NewPositionCache creates a cache sized for roughly capHint entries.
func NewPositionCache(capHint int) *PositionCache {
	if capHint < 16 {
		capHint = 16
	}
	return &PositionCache{
		index: intintmap.New(capHint, 0.6),
		arena: make([]ChunkPos, 0, capHint),
	}
}

// Lookup returns the interned position for (x, z), adding it if absent.
func (pc *PositionCache) Lookup(x, z int) ChunkPos {
	key := PackPos(x, z)
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if idx, ok := pc.index.Get(key); ok {
		return pc.arena[idx]
	}
	p := ChunkPos{X: x, Z: z}
	pc.arena = append(pc.arena, p)
	pc.index.Put(key, int64(len(pc.arena)-1))
	return p
}

// Len returns the number of cached positions.
func (pc *PositionCache) Len() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.arena)
}

// Prune drops every entry for which live returns false and compacts the
// arena. Returns the number of entries removed. live runs without pc.mu held:
// it typically consults the store's chunk map, and holding the cache lock
// across that lookup would invert the store's lock order.
func (pc *PositionCache) Prune(live func(ChunkPos) bool) int {
	pc.mu.Lock()
	snapshot := make([]ChunkPos, len(pc.arena))
	copy(snapshot, pc.arena)
	pc.mu.Unlock()

	dead := make(map[int64]struct{})
	for _, p := range snapshot {
		if !live(p) {
			dead[p.Key()] = struct{}{}
		}
	}
	if len(dead) == 0 {
		return 0
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	// Entries added since the snapshot were never evaluated and are kept.
	kept := pc.arena[:0]
	removed := 0
	for _, p := range pc.arena {
		if _, ok := dead[p.Key()]; ok {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	pc.arena = kept
	pc.index = intintmap.New(max(len(kept), 16), 0.6)
	for i, p := range pc.arena {
		pc.index.Put(p.Key(), int64(i))
	}
	return removed
}
