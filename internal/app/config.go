package app

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"arena/server/internal/telemetry"
	"arena/server/internal/world"
	"arena/server/logging"
)

const (
	defaultAddr            = ":6789"
	defaultShutdownTimeout = 5 * time.Second
)

// Config is the process configuration. It is fixed once Run starts.
type Config struct {
	Addr    string
	TCPAddr string

	World           world.Config
	SendQueue       int
	UniqueNames     bool
	CatchupMaxTicks int

	LogLevel       logging.Severity
	LogJSONPath    string
	DeadlockDetect bool
	Pprof          bool

	ShutdownTimeout time.Duration

	Logger telemetry.Logger
	// OnListen, when set, is called with the bound HTTP address.
	OnListen func(addr string)
}

func DefaultConfig() Config {
	return Config{
		Addr:            defaultAddr,
		World:           world.DefaultConfig(),
		LogLevel:        logging.SeverityInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// LoadConfig reads the optional env files (".env" when none are given) into
// the process environment without overriding variables already set, then
// builds the configuration from the environment.
func LoadConfig(logger telemetry.Logger, files ...string) Config {
	if logger == nil {
		logger = telemetry.Discard()
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Printf("failed to load %s: %v", file, err)
			}
			continue
		}
		logger.Printf("loaded environment from %s", file)
	}
	return ConfigFromEnv(os.LookupEnv, logger)
}

// ConfigFromEnv builds the configuration from lookup. Invalid values are
// logged and the default is kept.
func ConfigFromEnv(lookup func(string) (string, bool), logger telemetry.Logger) Config {
	if logger == nil {
		logger = telemetry.Discard()
	}
	cfg := DefaultConfig()
	env := envReader{lookup: lookup, logger: logger}

	env.string("ARENA_ADDR", &cfg.Addr)
	env.string("ARENA_TCP_ADDR", &cfg.TCPAddr)
	env.positiveFloat("ARENA_WORLD_SIZE", &cfg.World.Size)
	env.duration("ARENA_UPDATE_PERIOD", &cfg.World.UpdatePeriod)
	env.duration("ARENA_FIRE_COOLDOWN", &cfg.World.FireCooldown)
	env.positiveFloat("ARENA_HIT_DISTANCE", &cfg.World.HitDistance)
	env.positiveInt("ARENA_SEND_QUEUE", &cfg.SendQueue)
	env.bool("ARENA_UNIQUE_NAMES", &cfg.UniqueNames)
	env.positiveInt("ARENA_CATCHUP_MAX_TICKS", &cfg.CatchupMaxTicks)
	env.string("ARENA_LOG_JSON", &cfg.LogJSONPath)
	env.bool("ARENA_DEADLOCK_DETECT", &cfg.DeadlockDetect)
	env.bool("ARENA_PPROF", &cfg.Pprof)
	env.duration("ARENA_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if raw, ok := env.get("ARENA_LOG_LEVEL"); ok {
		if level, valid := logging.ParseSeverity(raw); valid {
			cfg.LogLevel = level
		} else {
			logger.Printf("invalid ARENA_LOG_LEVEL=%q", raw)
		}
	}
	return cfg
}

type envReader struct {
	lookup func(string) (string, bool)
	logger telemetry.Logger
}

func (e envReader) get(key string) (string, bool) {
	if e.lookup == nil {
		return "", false
	}
	raw, ok := e.lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

func (e envReader) string(key string, dst *string) {
	if raw, ok := e.get(key); ok {
		*dst = raw
	}
}

func (e envReader) bool(key string, dst *bool) {
	raw, ok := e.get(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func (e envReader) positiveInt(key string, dst *int) {
	raw, ok := e.get(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		e.logger.Printf("invalid %s=%q: must be a positive integer", key, raw)
		return
	}
	*dst = value
}

func (e envReader) positiveFloat(key string, dst *float64) {
	raw, ok := e.get(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		e.logger.Printf("invalid %s=%q: must be a positive number", key, raw)
		return
	}
	*dst = value
}

// duration accepts Go duration syntax ("50ms") or plain seconds ("0.05").
func (e envReader) duration(key string, dst *time.Duration) {
	raw, ok := e.get(key)
	if !ok {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		seconds, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			e.logger.Printf("invalid %s=%q: %v", key, raw, err)
			return
		}
		value = time.Duration(seconds * float64(time.Second))
	}
	if value <= 0 {
		e.logger.Printf("invalid %s=%q: must be positive", key, raw)
		return
	}
	*dst = value
}
