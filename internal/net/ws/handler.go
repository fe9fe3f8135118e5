package ws

import (
	"errors"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"arena/server"
	"arena/server/internal/telemetry"
)

type HandlerConfig struct {
	Logger  telemetry.Logger
	Session SessionConfig
}

// Handler upgrades HTTP requests and hands the resulting sessions to the hub.
type Handler struct {
	hub      *server.Hub
	logger   telemetry.Logger
	session  SessionConfig
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := telemetry.Prefixed(cfg.Logger, "[ws]")

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		session:  cfg.Session,
		upgrader: upgrader,
	}
}

// Handle serves one websocket connection until it closes.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	sess := NewSession(conn, h.session, h.logger)
	if err := h.hub.Serve(r.Context(), sess); err != nil && !errors.Is(err, server.ErrHubClosed) {
		h.logger.Printf("session %s from %s ended: %v", sess.ID(), sess.RemoteAddr(), err)
	}
	<-sess.Done()
}
