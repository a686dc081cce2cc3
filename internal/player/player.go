package player

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Player exposes the position the chunk subsystems read. Movement and
// physics live outside this core; consumers only ever query.
type Player struct {
	mu  sync.RWMutex
	pos mgl32.Vec3
}

// New creates a player at the given spawn position.
func New(spawn mgl32.Vec3) *Player {
	return &Player{pos: spawn}
}

// Position returns the current world position.
func (p *Player) Position() mgl32.Vec3 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

// SetPosition moves the player.
func (p *Player) SetPosition(v mgl32.Vec3) {
	p.mu.Lock()
	p.pos = v
	p.mu.Unlock()
}

// Move offsets the player by delta.
func (p *Player) Move(delta mgl32.Vec3) {
	p.mu.Lock()
	p.pos = p.pos.Add(delta)
	p.mu.Unlock()
}
