package combat

import (
	"context"

	"arena/server/logging"
)

const (
	// EventFireResolved is emitted for every accepted shot, hit or miss.
	EventFireResolved logging.EventType = "combat.fire_resolved"
	// EventFireRejected is emitted when a shot arrives during cooldown.
	EventFireRejected logging.EventType = "combat.fire_rejected"
)

// FireResolvedPayload summarises an accepted shot.
type FireResolvedPayload struct {
	Hit  bool `json:"hit"`
	Hits int  `json:"hits"`
}

// FireRejectedPayload captures the cooldown still to wait.
type FireRejectedPayload struct {
	RemainingMillis int64 `json:"remainingMillis"`
}

// FireResolved publishes the outcome of an accepted shot. Targets are the
// players caught in the hit radius.
func FireResolved(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, targets []logging.EntityRef, payload FireResolvedPayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityDebug
	if payload.Hit {
		severity = logging.SeverityInfo
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFireResolved,
		Actor:    actor,
		Targets:  append([]logging.EntityRef(nil), targets...),
		Severity: severity,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}

// FireRejected publishes a debug event for a shot dropped by the cooldown.
func FireRejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload FireRejectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFireRejected,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}
