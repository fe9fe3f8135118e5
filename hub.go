package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"arena/server/internal/net/proto"
	"arena/server/internal/registry"
	"arena/server/internal/telemetry"
	"arena/server/internal/world"
	"arena/server/logging"
	loggingnetwork "arena/server/logging/network"
)

// ErrHubClosed is returned by Serve once the hub has been shut down.
var ErrHubClosed = errors.New("hub closed")

// Hub owns the registry of connected players and drives every mutation of
// the shared world: joins and leaves, client intents and the simulation tick.
type Hub struct {
	config    HubConfig
	registry  *registry.Registry
	logger    telemetry.Logger
	publisher logging.Publisher
	clock     logging.Clock
	telemetry *telemetryCounters

	sessionsMu sync.Mutex
	sessions   map[uuid.UUID]Session
	closed     bool

	tick          atomic.Uint64
	overrunStreak uint64
}

// NewHub creates a hub with the default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub using cfg. Missing collaborators are
// replaced by no-op implementations.
func NewHubWithConfig(cfg HubConfig) *Hub {
	cfg = cfg.normalized()
	return &Hub{
		config:    cfg,
		registry:  registry.New(),
		logger:    cfg.Logger,
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		telemetry: newTelemetryCounters(cfg.Metrics),
		sessions:  make(map[uuid.UUID]Session),
	}
}

// Config returns the normalized configuration the hub runs with.
func (h *Hub) Config() HubConfig {
	return h.config
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Serve runs one session from the join handshake until it closes. It blocks
// for the lifetime of the session and must be called once per session on its
// own goroutine. The leave sequence always runs once a join succeeded.
//
// Serve returns nil when the peer disconnects or ctx ends, and the protocol
// or policy error otherwise.
func (h *Hub) Serve(ctx context.Context, sess Session) error {
	if !h.track(sess) {
		sess.Close(CloseShuttingDown)
		return ErrHubClosed
	}
	defer h.untrack(sess)

	payload, err := sess.Receive(ctx)
	if err != nil {
		if errors.Is(err, proto.ErrMalformed) {
			h.reportMalformed(ctx, sess, len(payload), err)
			sess.Close(CloseProtocolError)
			return err
		}
		if ctx.Err() != nil {
			sess.Close(CloseShuttingDown)
			return nil
		}
		sess.Close(CloseNormal)
		return nil
	}

	name, err := proto.DecodeName(payload)
	if err != nil {
		h.rejectJoin(ctx, sess, err, CloseProtocolError)
		return err
	}
	if err := h.join(ctx, sess, name); err != nil {
		h.rejectJoin(ctx, sess, err, joinCloseReason(err))
		return err
	}

	leaveReason := CloseNormal
	defer func() {
		h.leave(ctx, sess, leaveReason)
	}()

	for {
		payload, err := sess.Receive(ctx)
		if err != nil {
			if errors.Is(err, proto.ErrMalformed) {
				h.reportMalformed(ctx, sess, len(payload), err)
				leaveReason = CloseProtocolError
				sess.Close(leaveReason)
				return err
			}
			if ctx.Err() != nil {
				leaveReason = CloseShuttingDown
			}
			sess.Close(leaveReason)
			return nil
		}
		if err := h.HandleMessage(ctx, sess, payload); err != nil {
			leaveReason = CloseProtocolError
			sess.Close(leaveReason)
			return err
		}
	}
}

func joinCloseReason(err error) CloseReason {
	switch {
	case errors.Is(err, ErrDuplicateName):
		return ClosePolicyViolation
	case errors.Is(err, ErrSendQueueFull):
		return CloseSlowConsumer
	case errors.Is(err, ErrSessionClosed):
		return CloseNormal
	default:
		return CloseInternalError
	}
}

func (h *Hub) reportMalformed(ctx context.Context, sess Session, size int, err error) {
	h.telemetry.RecordMalformed()
	h.logger.Printf("[hub] closing %s after malformed message: %v", sess.ID(), err)
	loggingnetwork.MalformedMessage(ctx, h.sessionPublisher(sess), connectionRef(sess.ID()), loggingnetwork.MalformedMessagePayload{
		Error: err.Error(),
		Bytes: size,
	})
}

// sessionPublisher tags events about sess with its remote address.
func (h *Hub) sessionPublisher(sess Session) logging.Publisher {
	return logging.WithFields(h.publisher, map[string]any{"remote": sess.RemoteAddr()})
}

func (h *Hub) track(sess Session) bool {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[sess.ID()] = sess
	return true
}

func (h *Hub) untrack(sess Session) {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	if current, ok := h.sessions[sess.ID()]; ok && current == sess {
		delete(h.sessions, sess.ID())
	}
}

// Close stops accepting sessions and closes every open one. Each session's
// Serve call still runs its leave sequence.
func (h *Hub) Close() {
	h.sessionsMu.Lock()
	h.closed = true
	open := make([]Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		open = append(open, sess)
	}
	h.sessionsMu.Unlock()

	for _, sess := range open {
		if err := sess.Close(CloseShuttingDown); err != nil {
			h.logger.Printf("[hub] failed to close %s: %v", sess.ID(), err)
		}
	}
}

// SessionCount reports the number of sessions being served, joined or not.
func (h *Hub) SessionCount() int {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	return len(h.sessions)
}

// DiagnosticsPlayer is one player entry of the diagnostics payload.
type DiagnosticsPlayer struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Pos   [2]float64 `json:"pos"`
	Speed [2]float64 `json:"speed"`
	Hits  int        `json:"hits"`
}

// DiagnosticsSnapshot lists the joined players in join order.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsPlayer {
	members := h.registry.Snapshot()
	players := make([]DiagnosticsPlayer, 0, len(members))
	for _, member := range members {
		players = append(players, DiagnosticsPlayer{
			ID:    member.Conn.ID().String(),
			Name:  member.Status.Name,
			Pos:   [2]float64(member.Status.Pos),
			Speed: [2]float64(member.Status.Speed),
			Hits:  member.Status.Hits,
		})
	}
	return players
}

// TelemetrySnapshot returns the hub counters.
func (h *Hub) TelemetrySnapshot() TelemetrySnapshot {
	return h.telemetry.Snapshot()
}

// World returns the world constants.
func (h *Hub) World() world.Config {
	return h.config.World
}
