package simulation

import (
	"context"

	"arena/server/logging"
)

const (
	// EventBoundaryClamp is emitted when a player is stopped by the world edge.
	EventBoundaryClamp logging.EventType = "simulation.boundary_clamp"
	// EventTickBudgetOverrun is emitted when a tick takes longer than its period.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
)

// BoundaryClampPayload records where the player came to rest.
type BoundaryClampPayload struct {
	Pos [2]float64 `json:"pos"`
}

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// BoundaryClamp publishes a debug event for a clamped player.
func BoundaryClamp(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload BoundaryClampPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBoundaryClamp,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// TickBudgetOverrun publishes a warning when the loop exceeds its period.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
