package app

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"arena/server/internal/telemetry"
	"arena/server/logging"
)

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg := ConfigFromEnv(mapLookup(nil), nil)
	if cfg.Addr != ":6789" {
		t.Fatalf("unexpected default addr %q", cfg.Addr)
	}
	if cfg.World.Size != 200 || cfg.World.UpdatePeriod != 50*time.Millisecond || cfg.World.FireCooldown != time.Second || cfg.World.HitDistance != 20 {
		t.Fatalf("unexpected default world %+v", cfg.World)
	}
	if cfg.UniqueNames || cfg.TCPAddr != "" || cfg.LogLevel != logging.SeverityInfo {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	cfg := ConfigFromEnv(mapLookup(map[string]string{
		"ARENA_ADDR":            "127.0.0.1:9000",
		"ARENA_TCP_ADDR":        ":9001",
		"ARENA_WORLD_SIZE":      "500",
		"ARENA_UPDATE_PERIOD":   "0.1",
		"ARENA_FIRE_COOLDOWN":   "250ms",
		"ARENA_HIT_DISTANCE":    "12.5",
		"ARENA_SEND_QUEUE":      "32",
		"ARENA_UNIQUE_NAMES":    "true",
		"ARENA_LOG_LEVEL":       "debug",
		"ARENA_DEADLOCK_DETECT": "1",
	}), nil)

	if cfg.Addr != "127.0.0.1:9000" || cfg.TCPAddr != ":9001" {
		t.Fatalf("unexpected addresses %q %q", cfg.Addr, cfg.TCPAddr)
	}
	if cfg.World.Size != 500 || cfg.World.UpdatePeriod != 100*time.Millisecond || cfg.World.FireCooldown != 250*time.Millisecond || cfg.World.HitDistance != 12.5 {
		t.Fatalf("unexpected world %+v", cfg.World)
	}
	if cfg.SendQueue != 32 || !cfg.UniqueNames || !cfg.DeadlockDetect || cfg.LogLevel != logging.SeverityDebug {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigFromEnvLogsInvalidValues(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.WrapLogger(log.New(&buf, "", 0))
	cfg := ConfigFromEnv(mapLookup(map[string]string{
		"ARENA_WORLD_SIZE":    "-1",
		"ARENA_UPDATE_PERIOD": "soon",
		"ARENA_UNIQUE_NAMES":  "maybe",
		"ARENA_LOG_LEVEL":     "loud",
	}), logger)

	if cfg.World.Size != 200 || cfg.World.UpdatePeriod != 50*time.Millisecond || cfg.UniqueNames {
		t.Fatalf("expected defaults to survive invalid input, got %+v", cfg)
	}
	for _, key := range []string{"ARENA_WORLD_SIZE", "ARENA_UPDATE_PERIOD", "ARENA_UNIQUE_NAMES", "ARENA_LOG_LEVEL"} {
		if !strings.Contains(buf.String(), key) {
			t.Fatalf("expected %s to be reported, log:\n%s", key, buf.String())
		}
	}
}

func TestConfigFromDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.env")
	content := "ARENA_WORLD_SIZE=320\n# comment\nARENA_UNIQUE_NAMES=yes\nARENA_HIT_DISTANCE=\"8\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("failed to read env file: %v", err)
	}

	var buf bytes.Buffer
	cfg := ConfigFromEnv(mapLookup(values), telemetry.WrapLogger(log.New(&buf, "", 0)))
	if cfg.World.Size != 320 || cfg.World.HitDistance != 8 {
		t.Fatalf("unexpected world %+v", cfg.World)
	}
	if cfg.UniqueNames {
		t.Fatalf("expected yes to be rejected as a boolean")
	}
	if !strings.Contains(buf.String(), "ARENA_UNIQUE_NAMES") {
		t.Fatalf("expected invalid boolean to be reported")
	}
}

func TestLoadConfigToleratesMissingFile(t *testing.T) {
	var buf bytes.Buffer
	cfg := LoadConfig(telemetry.WrapLogger(log.New(&buf, "", 0)), filepath.Join(t.TempDir(), "missing.env"))
	if cfg.Addr == "" {
		t.Fatalf("expected a usable config")
	}
	if buf.Len() != 0 {
		t.Fatalf("missing env file should be silent, got %q", buf.String())
	}
}
