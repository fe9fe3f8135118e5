package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arena/server/internal/app"
	"arena/server/internal/telemetry"
)

func main() {
	envFile := flag.String("env", ".env", "optional file of KEY=VALUE pairs loaded before reading the environment")
	flag.Parse()

	logger := telemetry.WrapLogger(log.New(os.Stderr, "[arena] ", log.LstdFlags))
	cfg := app.LoadConfig(logger, *envFile)
	cfg.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
