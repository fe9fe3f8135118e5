package network

import (
	"context"

	"arena/server/logging"
)

const (
	// EventMalformedMessage is emitted when a frame cannot be decoded.
	EventMalformedMessage logging.EventType = "network.malformed_message"
	// EventUnsupportedIntent is emitted for well-formed intents with an unknown action.
	EventUnsupportedIntent logging.EventType = "network.unsupported_intent"
	// EventDeliveryFailed is emitted when a broadcast cannot be handed to a recipient.
	EventDeliveryFailed logging.EventType = "network.delivery_failed"
)

// MalformedMessagePayload carries the decode error.
type MalformedMessagePayload struct {
	Error string `json:"error"`
	Bytes int    `json:"bytes"`
}

// UnsupportedIntentPayload names the rejected action.
type UnsupportedIntentPayload struct {
	Action string `json:"action"`
}

// DeliveryFailedPayload describes a failed hand-off to a recipient.
type DeliveryFailedPayload struct {
	MessageType string `json:"messageType"`
	Error       string `json:"error"`
}

// MalformedMessage publishes a warning for an undecodable frame.
func MalformedMessage(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MalformedMessagePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMalformedMessage,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// UnsupportedIntent publishes an error for an unknown action.
func UnsupportedIntent(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload UnsupportedIntentPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnsupportedIntent,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// DeliveryFailed publishes a warning for a recipient that could not take a message.
func DeliveryFailed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload DeliveryFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDeliveryFailed,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
