package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"arena/server"
	"arena/server/internal/net/proto"
	"arena/server/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

// SessionConfig tunes a websocket session.
type SessionConfig struct {
	SendQueue      int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (cfg SessionConfig) normalized() SessionConfig {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = server.DefaultSendQueue
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = writeWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = pongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = maxMessageSize
	}
	return cfg
}

// Session adapts a gorilla websocket connection to server.Session. Outbound
// frames go through a bounded queue drained by a dedicated write pump, so
// Send never waits on the network.
type Session struct {
	id     uuid.UUID
	conn   *websocket.Conn
	cfg    SessionConfig
	logger telemetry.Logger

	send chan [][]byte
	done chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	reason    server.CloseReason

	pumpDone chan struct{}
}

// NewSession wraps conn and starts its write pump.
func NewSession(conn *websocket.Conn, cfg SessionConfig, logger telemetry.Logger) *Session {
	cfg = cfg.normalized()
	if logger == nil {
		logger = telemetry.Discard()
	}
	s := &Session{
		id:       uuid.New(),
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		send:     make(chan [][]byte, cfg.SendQueue),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	conn.SetReadLimit(cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go s.writePump()
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *Session) Send(data []byte) error {
	return s.SendBatch([][]byte{data})
}

func (s *Session) SendBatch(frames [][]byte) error {
	select {
	case <-s.done:
		return server.ErrSessionClosed
	default:
	}
	select {
	case s.send <- frames:
		return nil
	default:
		return server.ErrSendQueueFull
	}
}

// Receive returns the next text frame. Binary frames are a protocol
// violation. Cancelling ctx closes the session.
func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		s.Close(server.CloseShuttingDown)
	})
	defer stop()

	messageType, payload, err := s.conn.ReadMessage()
	if err != nil {
		if s.isClosed() {
			return nil, server.ErrSessionClosed
		}
		return nil, err
	}
	if messageType != websocket.TextMessage {
		return payload, fmt.Errorf("%w: binary frame", proto.ErrMalformed)
	}
	return payload, nil
}

// Close asks the write pump to send a close frame and release the
// connection. Only the first reason is used.
func (s *Session) Close(reason server.CloseReason) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Done is closed once the connection has been released.
func (s *Session) Done() <-chan struct{} {
	return s.pumpDone
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) closeReason() server.CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) writePump() {
	ticker := time.NewTicker((s.cfg.PongWait * 9) / 10)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.pumpDone)
	}()

	for {
		select {
		case frames := <-s.send:
			if err := s.writeFrames(frames); err != nil {
				s.logger.Printf("write to %s failed: %v", s.id, err)
				s.Close(server.CloseInternalError)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close(server.CloseNormal)
				return
			}
		case <-s.done:
			s.finish()
			return
		}
	}
}

func (s *Session) writeFrames(frames [][]byte) error {
	for _, frame := range frames {
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}

// finish flushes what is already queued, unless the peer is the reason for
// the close, and then says goodbye.
func (s *Session) finish() {
	reason := s.closeReason()
	if reason != server.CloseSlowConsumer && reason != server.CloseInternalError {
	flush:
		for {
			select {
			case frames := <-s.send:
				if err := s.writeFrames(frames); err != nil {
					return
				}
			default:
				break flush
			}
		}
	}
	code, text := closeCode(reason)
	err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(s.cfg.WriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Printf("close frame to %s failed: %v", s.id, err)
	}
}

func closeCode(reason server.CloseReason) (int, string) {
	switch reason {
	case server.CloseProtocolError:
		return websocket.CloseProtocolError, "protocol error"
	case server.ClosePolicyViolation:
		return websocket.ClosePolicyViolation, "policy violation"
	case server.CloseSlowConsumer:
		return websocket.CloseTryAgainLater, "too slow"
	case server.CloseShuttingDown:
		return websocket.CloseGoingAway, "server shutting down"
	case server.CloseInternalError:
		return websocket.CloseInternalServerErr, "internal error"
	default:
		return websocket.CloseNormalClosure, ""
	}
}
