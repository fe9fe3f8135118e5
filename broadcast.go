package server

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"arena/server/internal/registry"
	"arena/server/logging"
	loggingnetwork "arena/server/logging/network"
)

// failedDelivery records a recipient that could not take a message.
type failedDelivery struct {
	conn        registry.Conn
	messageType string
	err         error
}

// fanOutLocked hands data to every connection in conns. It must run inside a
// registry transaction so that the recipient set and the message agree. Send
// never blocks, so a slow recipient only fails its own delivery.
func (h *Hub) fanOutLocked(conns []registry.Conn, messageType string, data []byte) []failedDelivery {
	var failures []failedDelivery
	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(data); err != nil {
			failures = append(failures, failedDelivery{conn: conn, messageType: messageType, err: err})
			continue
		}
		delivered++
	}
	h.telemetry.RecordDelivery(delivered, delivered*len(data))
	return failures
}

// dropFailed closes every recipient that failed a delivery and removes it
// from the registry before any further broadcast. It must be called after the
// registry lock is released. A recipient that was already closed is only
// removed.
func (h *Hub) dropFailed(ctx context.Context, failures []failedDelivery) {
	if len(failures) == 0 {
		return
	}
	seen := make(map[uuid.UUID]struct{}, len(failures))
	for _, failure := range failures {
		id := failure.conn.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sess, ok := failure.conn.(Session)
		if !ok {
			h.logger.Printf("[hub] connection %s failed delivery but is not a session: %v", id, failure.err)
			continue
		}
		if errors.Is(failure.err, ErrSessionClosed) {
			h.leave(ctx, sess, CloseNormal)
			continue
		}

		h.telemetry.RecordDeliveryFailure()
		loggingnetwork.DeliveryFailed(ctx, h.publisher, connectionRef(id), loggingnetwork.DeliveryFailedPayload{
			MessageType: failure.messageType,
			Error:       failure.err.Error(),
		})

		reason := CloseInternalError
		if errors.Is(failure.err, ErrSendQueueFull) {
			reason = CloseSlowConsumer
		}
		if err := sess.Close(reason); err != nil {
			h.logger.Printf("[hub] failed to close %s after delivery failure: %v", id, err)
		}
		h.leave(ctx, sess, reason)
	}
}

func connectionRef(id uuid.UUID) logging.EntityRef {
	return logging.EntityRef{ID: id.String(), Kind: logging.EntityKindConnection}
}
