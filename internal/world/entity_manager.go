package world

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelforge/internal/profiling"
)

// Entity is anything the manager ticks and can remove by chunk bounds.
type Entity interface {
	Update(dt float64)
	IsDead() bool
	Position() mgl32.Vec3
}

// EntityManager handles entity lifecycle and chunk-scoped removal.
type EntityManager struct {
	mu       sync.RWMutex
	entities []Entity
}

// NewEntityManager creates an empty manager.
func NewEntityManager() *EntityManager {
	return &EntityManager{entities: make([]Entity, 0)}
}

// Add registers an entity.
func (em *EntityManager) Add(e Entity) {
	em.mu.Lock()
	em.entities = append(em.entities, e)
	em.mu.Unlock()
}

// Update ticks all entities and drops dead ones.
func (em *EntityManager) Update(dt float64) {
	defer profiling.Track("world.UpdateEntities")()
	em.mu.Lock()
	defer em.mu.Unlock()

	active := 0
	for _, e := range em.entities {
		if e.IsDead() {
			continue
		}
		e.Update(dt)
		if !e.IsDead() {
			em.entities[active] = e
			active++
		}
	}
	em.entities = em.entities[:active]
}

// Count returns the number of live entities.
func (em *EntityManager) Count() int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.entities)
}

// RemoveEntitiesInChunk drops every entity inside the bounds of chunk (cx, cz).
// Called by the store when the chunk unloads.
func (em *EntityManager) RemoveEntitiesInChunk(cx, cz int) {
	minX := float32(cx * ChunkSize)
	minZ := float32(cz * ChunkSize)
	maxX := minX + ChunkSize
	maxZ := minZ + ChunkSize

	em.mu.Lock()
	defer em.mu.Unlock()
	active := 0
	for _, e := range em.entities {
		p := e.Position()
		if p.X() >= minX && p.X() < maxX && p.Z() >= minZ && p.Z() < maxZ {
			continue
		}
		em.entities[active] = e
		active++
	}
	em.entities = em.entities[:active]
}
