package sim

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"arena/server/internal/telemetry"
	"arena/server/logging"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

func runLoop(t *testing.T, cfg LoopConfig, clock *stubClock, metrics telemetry.Metrics, gaps []time.Duration) []LoopStepResult {
	t.Helper()
	ticker := &manualTicker{ch: make(chan time.Time)}
	results := make(chan LoopStepResult, len(gaps))
	started := make(chan struct{})
	newTicker := func(time.Duration) Ticker {
		close(started)
		return ticker
	}
	loop := NewLoop(cfg, LoopHooks{
		AfterStep: func(r LoopStepResult) { results <- r },
	}, WithClock(clock), WithTicker(newTicker), WithTelemetry(nil, metrics))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	<-started

	collected := make([]LoopStepResult, 0, len(gaps))
	for _, gap := range gaps {
		clock.Advance(gap)
		ticker.ch <- clock.Now()
		select {
		case r := <-results:
			collected = append(collected, r)
		case <-time.After(time.Second):
			t.Fatalf("tick did not complete")
		}
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	return collected
}

func TestLoopMeasuresElapsedTimePerTick(t *testing.T) {
	clock := &stubClock{now: time.Unix(0, 0)}
	gaps := []time.Duration{50 * time.Millisecond, 80 * time.Millisecond, 20 * time.Millisecond}
	results := runLoop(t, LoopConfig{Period: 50 * time.Millisecond}, clock, nil, gaps)

	for i, gap := range gaps {
		if results[i].Tick != uint64(i+1) {
			t.Fatalf("expected tick %d, got %d", i+1, results[i].Tick)
		}
		if math.Abs(results[i].Delta-gap.Seconds()) > 1e-9 {
			t.Fatalf("tick %d: expected delta %.3f, got %.3f", i+1, gap.Seconds(), results[i].Delta)
		}
		if results[i].ClampedDelta {
			t.Fatalf("tick %d: unexpected clamp without catch-up limit", i+1)
		}
	}
}

func TestLoopClampsDeltaWhenCatchupConfigured(t *testing.T) {
	clock := &stubClock{now: time.Unix(0, 0)}
	results := runLoop(t, LoopConfig{Period: 50 * time.Millisecond, CatchupMaxTicks: 2}, clock, nil, []time.Duration{time.Second})

	if !results[0].ClampedDelta {
		t.Fatalf("expected clamped delta")
	}
	if math.Abs(results[0].Delta-0.1) > 1e-9 {
		t.Fatalf("expected delta clamped to 0.1s, got %.3f", results[0].Delta)
	}
}

func TestLoopReportsTickMetrics(t *testing.T) {
	clock := &stubClock{now: time.Unix(0, 0)}
	metrics := &logging.Metrics{}
	runLoop(t, LoopConfig{Period: 50 * time.Millisecond}, clock, telemetry.WrapMetrics(metrics), []time.Duration{50 * time.Millisecond, 50 * time.Millisecond})

	if got := metrics.Snapshot()[telemetry.MetricTicksTotal]; got != 2 {
		t.Fatalf("expected 2 ticks recorded, got %d", got)
	}
}

func TestLoopStepHookSeesTickContext(t *testing.T) {
	clock := &stubClock{now: time.Unix(0, 0)}
	ticker := &manualTicker{ch: make(chan time.Time)}
	steps := make(chan LoopTickContext, 1)
	started := make(chan struct{})
	loop := NewLoop(LoopConfig{Period: 10 * time.Millisecond}, LoopHooks{
		Step: func(ctx LoopTickContext) { steps <- ctx },
	}, WithClock(clock), WithTicker(func(time.Duration) Ticker {
		close(started)
		return ticker
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	<-started

	clock.Advance(10 * time.Millisecond)
	ticker.ch <- clock.Now()
	got := <-steps
	if got.Tick != 1 || !got.Now.Equal(clock.Now()) {
		t.Fatalf("unexpected tick context %+v", got)
	}
}

func TestLoopResultOverrun(t *testing.T) {
	if (LoopStepResult{Duration: 60 * time.Millisecond, Budget: 50 * time.Millisecond}).Overrun() != true {
		t.Fatalf("expected overrun")
	}
	if (LoopStepResult{Duration: 10 * time.Millisecond, Budget: 50 * time.Millisecond}).Overrun() {
		t.Fatalf("unexpected overrun")
	}
}

func TestLoopPeriodDefaults(t *testing.T) {
	if got := NewLoop(LoopConfig{}, LoopHooks{}).Period(); got != 50*time.Millisecond {
		t.Fatalf("expected default period of 50ms, got %s", got)
	}
	if got := NewLoop(LoopConfig{Period: time.Second}, LoopHooks{}).Period(); got != time.Second {
		t.Fatalf("expected configured period, got %s", got)
	}
}
