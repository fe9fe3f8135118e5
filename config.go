package server

import (
	"arena/server/internal/telemetry"
	"arena/server/internal/world"
	"arena/server/logging"
)

// DefaultSendQueue is the number of outbound frames a session may buffer
// before it is treated as a slow consumer.
const DefaultSendQueue = 256

// HubConfig captures the tunables that shape a hub.
type HubConfig struct {
	World world.Config

	// UniqueNames rejects a join whose name is already in use.
	UniqueNames bool
	// CatchupMaxTicks bounds the per-tick delta to that many periods.
	// Zero keeps the measured delta.
	CatchupMaxTicks int

	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
}

// DefaultHubConfig returns the configuration used by the production server.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		World: world.DefaultConfig(),
	}
}

func (cfg HubConfig) normalized() HubConfig {
	normalized := cfg
	normalized.World = cfg.World.Normalized()
	if normalized.CatchupMaxTicks < 0 {
		normalized.CatchupMaxTicks = 0
	}
	if normalized.Logger == nil {
		normalized.Logger = telemetry.Discard()
	}
	if normalized.Publisher == nil {
		normalized.Publisher = logging.NopPublisher()
	}
	if normalized.Clock == nil {
		normalized.Clock = logging.SystemClock{}
	}
	return normalized
}
