package world

import (
	"time"

	"arena/server/internal/world/state"
)

const (
	DefaultSize         = 200.0
	DefaultUpdatePeriod = 50 * time.Millisecond
	DefaultFireCooldown = time.Second
	DefaultHitDistance  = 20.0
)

// Config holds the process-wide world constants. It is read-only once the
// hub has been constructed.
type Config struct {
	Size         float64       `json:"size"`
	UpdatePeriod time.Duration `json:"updatePeriod"`
	FireCooldown time.Duration `json:"fireCooldown"`
	HitDistance  float64       `json:"hitDistance"`
}

func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.Size <= 0 {
		normalized.Size = DefaultSize
	}
	if normalized.UpdatePeriod <= 0 {
		normalized.UpdatePeriod = DefaultUpdatePeriod
	}
	if normalized.FireCooldown < 0 {
		normalized.FireCooldown = 0
	}
	if normalized.HitDistance < 0 {
		normalized.HitDistance = 0
	}
	return normalized
}

// Normalized replaces unset or invalid fields with defaults.
func (cfg Config) Normalized() Config {
	return cfg.normalized()
}

func DefaultConfig() Config {
	return Config{
		Size:         DefaultSize,
		UpdatePeriod: DefaultUpdatePeriod,
		FireCooldown: DefaultFireCooldown,
		HitDistance:  DefaultHitDistance,
	}
}

// Center returns the spawn point for new players.
func (cfg Config) Center() state.Vec2 {
	half := cfg.normalized().Size / 2
	return state.V(half, half)
}
