package tcp

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/gnet"

	"arena/server"
	"arena/server/internal/telemetry"
)

const defaultInboundQueue = 64

// Session adapts a gnet connection speaking newline-delimited text frames to
// server.Session. Inbound lines are pushed by the event loop; outbound frames
// are drained by a write pump into the connection's async write path.
type Session struct {
	id     uuid.UUID
	conn   gnet.Conn
	remote string
	logger telemetry.Logger

	inbound chan []byte
	send    chan [][]byte
	done    chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	reason    server.CloseReason
}

func newSession(conn gnet.Conn, sendQueue, inboundQueue int, logger telemetry.Logger) *Session {
	if sendQueue <= 0 {
		sendQueue = server.DefaultSendQueue
	}
	if inboundQueue <= 0 {
		inboundQueue = defaultInboundQueue
	}
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	s := &Session{
		id:      uuid.New(),
		conn:    conn,
		remote:  remote,
		logger:  logger,
		inbound: make(chan []byte, inboundQueue),
		send:    make(chan [][]byte, sendQueue),
		done:    make(chan struct{}),
	}
	go s.writePump()
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.remote
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

func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-s.inbound:
		return payload, nil
	default:
	}
	select {
	case payload := <-s.inbound:
		return payload, nil
	case <-s.done:
		return nil, server.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) Close(reason server.CloseReason) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// deliver is called from the event loop with a frame it owns. A client that
// outruns the hub is disconnected rather than stalling the loop.
func (s *Session) deliver(frame []byte) bool {
	select {
	case s.inbound <- frame:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Printf("inbound queue of %s full, disconnecting", s.id)
		s.Close(server.ClosePolicyViolation)
		return false
	}
}

// peerClosed records that the event loop already released the connection.
func (s *Session) peerClosed() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = server.CloseNormal
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) writePump() {
	for {
		select {
		case frames := <-s.send:
			for _, frame := range frames {
				// The codec appends the delimiter; frames are shared between
				// recipients, so cap the slice to force a copy.
				if err := s.conn.AsyncWrite(frame[:len(frame):len(frame)]); err != nil {
					s.logger.Printf("write to %s failed: %v", s.id, err)
					s.Close(server.CloseInternalError)
					return
				}
			}
		case <-s.done:
			return
		}
	}
}
