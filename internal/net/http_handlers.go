package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"arena/server"
	"arena/server/internal/net/ws"
	"arena/server/internal/observability"
	"arena/server/internal/telemetry"
	"arena/server/logging"
)

type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Session       ws.SessionConfig
	Observability observability.Config
	// Router, when set, contributes its stats and metrics to /diagnostics.
	Router *logging.Router
}

type diagnosticsPayload struct {
	Status           string                     `json:"status"`
	ServerTime       int64                      `json:"serverTime"`
	Tick             uint64                     `json:"tick"`
	TickPeriodMillis int64                      `json:"tickPeriodMillis"`
	WorldSize        float64                    `json:"worldSize"`
	Sessions         int                        `json:"sessions"`
	Players          []server.DiagnosticsPlayer `json:"players"`
	Telemetry        server.TelemetrySnapshot   `json:"telemetry"`
	Logging          *logging.RouterStats       `json:"logging,omitempty"`
	Metrics          map[string]uint64          `json:"metrics,omitempty"`
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		world := hub.World()
		payload := diagnosticsPayload{
			Status:           "ok",
			ServerTime:       time.Now().UnixMilli(),
			Tick:             hub.Tick(),
			TickPeriodMillis: world.UpdatePeriod.Milliseconds(),
			WorldSize:        world.Size,
			Sessions:         hub.SessionCount(),
			Players:          hub.DiagnosticsSnapshot(),
			Telemetry:        hub.TelemetrySnapshot(),
		}
		if cfg.Router != nil {
			stats := cfg.Router.Stats()
			payload.Logging = &stats
			payload.Metrics = cfg.Router.Metrics().Snapshot()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("[http] failed to encode diagnostics: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: logger, Session: cfg.Session})
	mux.HandleFunc("/ws", wsHandler.Handle)

	observability.Register(mux, cfg.Observability)

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
