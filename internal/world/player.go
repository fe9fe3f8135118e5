package world

import (
	"time"

	"arena/server/internal/world/state"
)

// Player is the authoritative record for one connected participant. A player
// is owned by the registry; callers only touch it inside a registry
// transaction.
type Player struct {
	name     string
	pos      state.Vec2
	speed    state.Vec2
	hits     int
	lastFire time.Time
}

// Status is a detached copy of a player's observable state.
type Status struct {
	Name  string
	Pos   state.Vec2
	Speed state.Vec2
	Hits  int
}

// NewPlayer spawns a player at pos. The fire cooldown starts counting from
// now, so a fresh player cannot fire immediately.
func NewPlayer(name string, pos state.Vec2, now time.Time) *Player {
	return &Player{name: name, pos: pos, lastFire: now}
}

// Name returns the identity chosen at join.
func (p *Player) Name() string {
	return p.name
}

// Position returns the current position.
func (p *Player) Position() state.Vec2 {
	return p.pos
}

// Speed returns the current velocity.
func (p *Player) Speed() state.Vec2 {
	return p.speed
}

// Hits returns the number of successful shots fired by the player.
func (p *Player) Hits() int {
	return p.hits
}

// LastFire returns the time of the last processed fire or stun.
func (p *Player) LastFire() time.Time {
	return p.lastFire
}

// Move replaces the velocity wholesale.
func (p *Player) Move(speed state.Vec2) {
	p.speed = speed
}

// Advance integrates the velocity over dt seconds and keeps the player inside
// the [0, size] square. When an axis is clamped the player stops: velocity is
// reset to zero. The return value reports whether a clamp happened.
func (p *Player) Advance(dt, size float64) bool {
	next := p.pos.Add(p.speed.Mul(dt))
	clamped, hit := state.ClampToSquare(next, size)
	p.pos = clamped
	if hit {
		p.speed = state.Vec2{}
	}
	return hit
}

// CooldownRemaining reports how long the player must still wait before a
// fire attempt is accepted. Zero means the player may fire.
func (p *Player) CooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	elapsed := now.Sub(p.lastFire)
	if elapsed >= cooldown {
		return 0
	}
	return cooldown - elapsed
}

// Stun restarts the player's fire cooldown at now.
func (p *Player) Stun(now time.Time) {
	p.lastFire = now
}

// Status snapshots the player.
func (p *Player) Status() Status {
	return Status{
		Name:  p.name,
		Pos:   p.pos,
		Speed: p.speed,
		Hits:  p.hits,
	}
}
