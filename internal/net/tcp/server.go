package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/gnet"
	"github.com/panjf2000/gnet/pkg/pool/goroutine"

	"arena/server"
	"arena/server/internal/telemetry"
)

// Config tunes the line transport.
type Config struct {
	// Addr is a host:port pair; a tcp:// prefix is optional.
	Addr         string
	SendQueue    int
	InboundQueue int
	Multicore    bool
	Logger       telemetry.Logger
}

// Server accepts newline-delimited text sessions and hands them to the hub.
// Each line is one frame: the first is the player name, the rest are intents.
// Outbound messages are written one per line.
type Server struct {
	*gnet.EventServer

	hub       *server.Hub
	cfg       Config
	protoAddr string
	logger    telemetry.Logger
	pool      *goroutine.Pool

	ctx       context.Context
	ready     chan struct{}
	readyOnce sync.Once
}

func NewServer(hub *server.Hub, cfg Config) *Server {
	logger := telemetry.Prefixed(cfg.Logger, "[tcp]")
	addr := cfg.Addr
	if !strings.HasPrefix(addr, "tcp://") {
		addr = "tcp://" + addr
	}
	return &Server{
		EventServer: &gnet.EventServer{},
		hub:         hub,
		cfg:         cfg,
		protoAddr:   addr,
		logger:      logger,
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the listener accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.ctx = ctx
	s.pool = goroutine.Default()
	defer s.pool.Release()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gnet.Stop(stopCtx, s.protoAddr); err != nil {
				s.logger.Printf("stop failed: %v", err)
			}
		case <-stopped:
		}
	}()

	err := gnet.Serve(s, s.protoAddr,
		gnet.WithMulticore(s.cfg.Multicore),
		gnet.WithCodec(&gnet.LineBasedFrameCodec{}),
		gnet.WithTCPKeepAlive(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("tcp transport on %s: %w", s.protoAddr, err)
	}
	return nil
}

func (s *Server) OnInitComplete(srv gnet.Server) gnet.Action {
	s.logger.Printf("listening on %s", srv.Addr)
	s.readyOnce.Do(func() { close(s.ready) })
	return gnet.None
}

func (s *Server) OnOpened(c gnet.Conn) ([]byte, gnet.Action) {
	sess := newSession(c, s.cfg.SendQueue, s.cfg.InboundQueue, s.logger)
	c.SetContext(sess)
	err := s.pool.Submit(func() {
		if err := s.hub.Serve(s.ctx, sess); err != nil && !errors.Is(err, server.ErrHubClosed) {
			s.logger.Printf("session %s from %s ended: %v", sess.ID(), sess.RemoteAddr(), err)
		}
	})
	if err != nil {
		s.logger.Printf("rejecting %s: %v", sess.RemoteAddr(), err)
		sess.peerClosed()
		return nil, gnet.Close
	}
	return nil, gnet.None
}

func (s *Server) React(frame []byte, c gnet.Conn) ([]byte, gnet.Action) {
	sess, ok := c.Context().(*Session)
	if !ok {
		return nil, gnet.Close
	}
	line := bytes.TrimSuffix(frame, []byte{'\r'})
	if !sess.deliver(append([]byte(nil), line...)) {
		return nil, gnet.Close
	}
	return nil, gnet.None
}

func (s *Server) OnClosed(c gnet.Conn, err error) gnet.Action {
	if sess, ok := c.Context().(*Session); ok {
		sess.peerClosed()
	}
	return gnet.None
}
