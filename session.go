package server

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"arena/server/internal/net/proto"
)

var (
	// ErrSendQueueFull is returned by Send when a recipient is not draining
	// its outbound queue fast enough.
	ErrSendQueueFull = errors.New("session send queue full")
	// ErrSessionClosed is returned by Send and Receive after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidName marks a join frame without a usable player name.
	ErrInvalidName = proto.ErrInvalidName
	// ErrDuplicateName is returned when unique names are enforced and the
	// requested name is taken.
	ErrDuplicateName = errors.New("player name already in use")
)

// CloseReason tells the transport why the hub is ending a session.
type CloseReason int

const (
	CloseNormal CloseReason = iota
	CloseProtocolError
	ClosePolicyViolation
	CloseSlowConsumer
	CloseShuttingDown
	CloseInternalError
)

func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "normal"
	case CloseProtocolError:
		return "protocol_error"
	case ClosePolicyViolation:
		return "policy_violation"
	case CloseSlowConsumer:
		return "slow_consumer"
	case CloseShuttingDown:
		return "shutting_down"
	case CloseInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Session is one client connection as seen by the hub. Transports implement
// it on top of their own framing.
//
// Send and SendBatch must not block: they queue frames for an independent
// writer and fail with ErrSendQueueFull when the queue is saturated. A batch
// is queued as a unit. Receive blocks for the next inbound text frame.
// Close is safe to call more than once and from any goroutine; it unblocks
// a pending Receive.
type Session interface {
	ID() uuid.UUID
	Send(data []byte) error
	SendBatch(frames [][]byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close(reason CloseReason) error
	RemoteAddr() string
}
