package sim

import (
	"context"
	"time"

	"arena/server/internal/telemetry"
	"arena/server/logging"
)

// LoopConfig tunes the fixed-period tick loop.
type LoopConfig struct {
	// Period is the interval between ticks.
	Period time.Duration
	// CatchupMaxTicks bounds the measured delta to that many periods. Zero
	// leaves the delta unclamped.
	CatchupMaxTicks int
}

// LoopTickContext is handed to the step hook on every tick.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult describes a completed tick.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// Overrun reports whether the step took longer than one period.
func (r LoopStepResult) Overrun() bool {
	return r.Budget > 0 && r.Duration > r.Budget
}

// LoopHooks are the callbacks driven by the loop.
type LoopHooks struct {
	Step      func(LoopTickContext)
	AfterStep func(LoopStepResult)
}

// Ticker is the subset of time.Ticker the loop depends on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(period time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(period)}
}

// Loop invokes its step hook once per period, passing the wall-clock time
// elapsed since the previous tick.
type Loop struct {
	config    LoopConfig
	hooks     LoopHooks
	clock     logging.Clock
	newTicker func(time.Duration) Ticker
	logger    telemetry.Logger
	metrics   telemetry.Metrics
}

// LoopOption customises a Loop.
type LoopOption func(*Loop)

// WithClock overrides the clock used to measure deltas.
func WithClock(clock logging.Clock) LoopOption {
	return func(l *Loop) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithTicker overrides the ticker constructor.
func WithTicker(newTicker func(time.Duration) Ticker) LoopOption {
	return func(l *Loop) {
		if newTicker != nil {
			l.newTicker = newTicker
		}
	}
}

// WithTelemetry reports tick counts and durations.
func WithTelemetry(logger telemetry.Logger, metrics telemetry.Metrics) LoopOption {
	return func(l *Loop) {
		l.logger = logger
		l.metrics = metrics
	}
}

func NewLoop(cfg LoopConfig, hooks LoopHooks, opts ...LoopOption) *Loop {
	if cfg.Period <= 0 {
		cfg.Period = 50 * time.Millisecond
	}
	l := &Loop{
		config:    cfg,
		hooks:     hooks,
		clock:     logging.SystemClock{},
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Period returns the configured tick interval.
func (l *Loop) Period() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Period
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	last := l.clock.Now()
	ticker := l.newTicker(l.config.Period)
	defer ticker.Stop()

	budget := l.config.Period
	maxDt := 0.0
	if l.config.CatchupMaxTicks > 0 {
		maxDt = budget.Seconds() * float64(l.config.CatchupMaxTicks)
	}

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			now := l.clock.Now()
			dt := now.Sub(last).Seconds()
			last = now
			clamped := false
			if dt < 0 {
				dt = 0
			} else if maxDt > 0 && dt > maxDt {
				dt = maxDt
				clamped = true
			}
			tick++

			start := l.clock.Now()
			if l.hooks.Step != nil {
				l.hooks.Step(LoopTickContext{Tick: tick, Now: now, Delta: dt})
			}
			result := LoopStepResult{
				Tick:         tick,
				Now:          now,
				Delta:        dt,
				Duration:     l.clock.Now().Sub(start),
				Budget:       budget,
				ClampedDelta: clamped,
				MaxDelta:     maxDt,
			}
			l.report(result)
			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) report(result LoopStepResult) {
	if l.metrics != nil {
		l.metrics.Add(telemetry.MetricTicksTotal, 1)
		l.metrics.Store(telemetry.MetricTickDurationMicros, uint64(max(result.Duration.Microseconds(), 0)))
		if result.Overrun() {
			l.metrics.Add(telemetry.MetricTickOverruns, 1)
		}
	}
	if result.ClampedDelta && l.logger != nil {
		l.logger.Printf("[sim] tick %d delta clamped to %.3fs", result.Tick, result.MaxDelta)
	}
}
