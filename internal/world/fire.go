package world

import (
	"time"

	"arena/server/internal/world/state"
)

// FireResult describes the outcome of a single fire attempt.
type FireResult struct {
	// Rejected is set when the shot arrived before the cooldown elapsed. No
	// state was changed.
	Rejected bool
	// Remaining is the cooldown left at the time of a rejected shot.
	Remaining time.Duration
	// Targets lists the players caught within the hit radius.
	Targets []*Player
}

// Hit reports whether at least one target was caught.
func (r FireResult) Hit() bool {
	return len(r.Targets) > 0
}

// TryFire resolves a shot fired by p at time now against candidates. The
// firer itself is never a target even if it is present in candidates.
//
// A shot that lands on any number of targets increments the firer's hit
// count once. Every target has its own cooldown restarted at now. Unless the
// shot is rejected for cooldown, the firer's cooldown restarts at now.
func (p *Player) TryFire(now time.Time, candidates []*Player, cfg Config) FireResult {
	if remaining := p.CooldownRemaining(now, cfg.FireCooldown); remaining > 0 {
		return FireResult{Rejected: true, Remaining: remaining}
	}

	var result FireResult
	for _, target := range candidates {
		if target == nil || target == p {
			continue
		}
		if !state.Within(p.pos, target.pos, cfg.HitDistance) {
			continue
		}
		target.Stun(now)
		result.Targets = append(result.Targets, target)
	}
	if result.Hit() {
		p.hits++
	}
	p.lastFire = now
	return result
}
