package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	server "arena/server"
	servernet "arena/server/internal/net"
	"arena/server/internal/net/tcp"
	"arena/server/internal/net/ws"
	"arena/server/internal/observability"
	"arena/server/internal/registry"
	"arena/server/internal/telemetry"
	"arena/server/logging"
	loggingSinks "arena/server/logging/sinks"
)

// Run starts the hub, its tick loop and the transports, and blocks until ctx
// is cancelled or a listener fails. Open sessions are closed on the way out
// so every player's leave sequence runs.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	router, err := newRouter(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	registry.DetectDeadlocks(cfg.DeadlockDetect, 30*time.Second, os.Stderr, nil)

	hubCfg := server.DefaultHubConfig()
	hubCfg.World = cfg.World
	hubCfg.UniqueNames = cfg.UniqueNames
	hubCfg.CatchupMaxTicks = cfg.CatchupMaxTicks
	hubCfg.Logger = telemetryLogger
	hubCfg.Metrics = telemetry.WrapMetrics(router.Metrics())
	hubCfg.Publisher = router
	hub := server.NewHubWithConfig(hubCfg)

	world := hub.World()
	telemetryLogger.Printf("world size=%.0f period=%s cooldown=%s hit=%.1f unique_names=%t",
		world.Size, world.UpdatePeriod, world.FireCooldown, world.HitDistance, cfg.UniqueNames)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.RunSimulation(runCtx); err != nil {
			errs <- fmt.Errorf("simulation stopped: %w", err)
		}
	}()

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		Logger:        telemetryLogger,
		Session:       ws.SessionConfig{SendQueue: cfg.SendQueue},
		Observability: observability.Config{EnablePprof: cfg.Pprof},
		Router:        router,
	})
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return runCtx },
	}
	telemetryLogger.Printf("server listening on %s", listener.Addr())
	if cfg.OnListen != nil {
		cfg.OnListen(listener.Addr().String())
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server failed: %w", err)
		}
	}()

	if cfg.TCPAddr != "" {
		lineServer := tcp.NewServer(hub, tcp.Config{
			Addr:      cfg.TCPAddr,
			SendQueue: cfg.SendQueue,
			Multicore: true,
			Logger:    telemetryLogger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lineServer.ListenAndServe(runCtx); err != nil {
				errs <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		telemetryLogger.Printf("shutting down")
	case runErr = <-errs:
		telemetryLogger.Printf("stopping after failure: %v", runErr)
	}

	hub.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("http shutdown: %v", err)
	}
	cancel()
	wg.Wait()
	return runErr
}

func newRouter(cfg Config) (*logging.Router, error) {
	logConfig := logging.DefaultConfig()
	logConfig.MinimumSeverity = cfg.LogLevel
	sinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout)},
	}
	if cfg.LogJSONPath != "" {
		file, err := os.OpenFile(cfg.LogJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log %s: %w", cfg.LogJSONPath, err)
		}
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
		logConfig.JSON.FilePath = cfg.LogJSONPath
		sinks = append(sinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval)})
	}
	return logging.NewRouter(logging.SystemClock{}, logConfig, sinks)
}

func shutdownTimeout(cfg Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return defaultShutdownTimeout
}
