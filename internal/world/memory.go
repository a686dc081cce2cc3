package world

import (
	"runtime"
	"sort"

	"go.uber.org/zap"

	"voxelforge/internal/profiling"
)

// PressureLevel classifies the loaded-chunk count.
type PressureLevel uint8

const (
	PressureNone PressureLevel = iota
	PressureHigh
	PressureWarning
	PressureEmergency
)

func (p PressureLevel) String() string {
	switch p {
	case PressureHigh:
		return "high"
	case PressureWarning:
		return "warning"
	case PressureEmergency:
		return "emergency"
	}
	return "none"
}

// MemoryPolicy holds the eviction thresholds and caps.
type MemoryPolicy struct {
	HighThreshold      int
	WarningThreshold   int
	EmergencyThreshold int
	WarningEvictCap    int
	EmergencyEvictCap  int
	// Eviction keeps chunks within renderDistance+cutoffSlack; the slack
	// shrinks as severity increases.
	WarningCutoffSlack   int
	EmergencyCutoffSlack int
	// Force a garbage pass every GCInterval high-pressure ticks.
	GCInterval int
}

// DefaultMemoryPolicy returns the standard thresholds.
func DefaultMemoryPolicy() MemoryPolicy {
	return MemoryPolicy{
		HighThreshold:        400,
		WarningThreshold:     500,
		EmergencyThreshold:   700,
		WarningEvictCap:      200,
		EmergencyEvictCap:    400,
		WarningCutoffSlack:   4,
		EmergencyCutoffSlack: 1,
		GCInterval:           8,
	}
}

// MemoryManager bounds resident chunk count. Once per tick it classifies
// pressure and, under Warning or Emergency, evicts the most distant chunks
// first. Dirty chunks are saved by the store's unload path before removal;
// a failed save leaves the chunk resident rather than lost.
type MemoryManager struct {
	store          *ChunkStore
	policy         MemoryPolicy
	renderDistance int
	log            *zap.Logger

	highTicks int
}

// NewMemoryManager creates a manager with the given policy.
func NewMemoryManager(store *ChunkStore, policy MemoryPolicy, renderDistance int, log *zap.Logger) *MemoryManager {
	return &MemoryManager{store: store, policy: policy, renderDistance: renderDistance, log: log}
}

// Classify maps a loaded-chunk count to a pressure level.
func (m *MemoryManager) Classify(loaded int) PressureLevel {
	switch {
	case loaded >= m.policy.EmergencyThreshold:
		return PressureEmergency
	case loaded >= m.policy.WarningThreshold:
		return PressureWarning
	case loaded >= m.policy.HighThreshold:
		return PressureHigh
	}
	return PressureNone
}

// Tick runs one memory-management pass and returns the number of chunks
// evicted.
func (m *MemoryManager) Tick(player ChunkPos) int {
	defer profiling.Track("world.MemoryTick")()

	loaded := m.store.Count()
	level := m.Classify(loaded)

	switch level {
	case PressureNone:
		m.highTicks = 0
		return 0
	case PressureHigh:
		m.highTicks++
		pruned := m.store.PrunePositionCache()
		if m.policy.GCInterval > 0 && m.highTicks%m.policy.GCInterval == 0 {
			runtime.GC()
		}
		if pruned > 0 {
			m.log.Debug("position cache compacted",
				zap.Int("pruned", pruned), zap.Int("loaded", loaded))
		}
		return 0
	}

	cutoff := m.renderDistance + m.policy.WarningCutoffSlack
	limit := m.policy.WarningEvictCap
	if level == PressureEmergency {
		cutoff = m.renderDistance + m.policy.EmergencyCutoffSlack
		limit = m.policy.EmergencyEvictCap
	}

	evicted := m.evictBeyond(player, cutoff, limit)
	m.store.PrunePositionCache()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.log.Info("memory pressure eviction",
		zap.String("level", level.String()),
		zap.Int("loaded", loaded),
		zap.Int("evicted", evicted),
		zap.Int("cutoff", cutoff),
		zap.Uint64("heap_alloc_mb", ms.HeapAlloc>>20))
	return evicted
}

// evictBeyond unloads up to limit chunks farther than cutoff from the player,
// furthest first. Chunks whose save fails stay loaded.
func (m *MemoryManager) evictBeyond(player ChunkPos, cutoff, limit int) int {
	type candidate struct {
		pos  ChunkPos
		dist int
	}
	var candidates []candidate
	for _, pos := range m.store.AllPositions() {
		if d := pos.Chebyshev(player); d > cutoff {
			candidates = append(candidates, candidate{pos: pos, dist: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].dist > candidates[j].dist
	})

	evicted := 0
	for _, cand := range candidates {
		if evicted >= limit {
			break
		}
		if err := m.store.Unload(cand.pos.X, cand.pos.Z); err != nil {
			// Save failure: correctness over memory, chunk stays.
			continue
		}
		evicted++
	}
	return evicted
}
