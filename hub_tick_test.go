package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"arena/server/internal/net/proto"
	"arena/server/internal/sim"
	"arena/server/internal/world/state"
	"arena/server/logging/simulation"
	"arena/server/logging/sinks"
)

func TestAdvanceClampsAtBoundaryAndNotifies(t *testing.T) {
	memory := sinks.NewMemorySink()
	hub, _ := newTestHub(t, func(cfg *HubConfig) { cfg.Publisher = memory })
	runner := newFakeSession()
	watcher := newFakeSession()
	mustJoin(t, hub, runner, "runner")
	mustJoin(t, hub, watcher, "watcher")
	place(t, hub, runner, state.V(199, 100))
	hub.move(context.Background(), runner.ID(), state.V(10, 0))
	watcher.reset()

	if clamped := hub.Advance(context.Background(), sim.LoopTickContext{Tick: 7, Delta: 0.5}); clamped != 1 {
		t.Fatalf("expected one clamped player, got %d", clamped)
	}

	states := watcher.framesOfType(t, proto.TypePlayerState)
	if len(states) != 1 {
		t.Fatalf("expected one state notification, got %+v", watcher.frames(t))
	}
	if states[0].Pos != [2]float64{200, 100} || states[0].Speed != [2]float64{0, 0} {
		t.Fatalf("expected stop at (200,100), got %+v", states[0])
	}
	events := memory.EventsOfType(simulation.EventBoundaryClamp)
	if len(events) != 1 || events[0].Tick != 7 {
		t.Fatalf("expected one clamp event on tick 7, got %+v", events)
	}
	if hub.Tick() != 7 {
		t.Fatalf("expected tick 7 recorded, got %d", hub.Tick())
	}

	watcher.reset()
	hub.Advance(context.Background(), sim.LoopTickContext{Tick: 8, Delta: 0.5})
	if frames := watcher.frames(t); len(frames) != 0 {
		t.Fatalf("a stopped player must not generate traffic, got %+v", frames)
	}
}

func TestStationaryPlayersGenerateNoTickTraffic(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	sess := newFakeSession()
	mustJoin(t, hub, sess, "idle")
	edge := newFakeSession()
	mustJoin(t, hub, edge, "edge")
	place(t, hub, edge, state.V(200, 200))
	sess.reset()

	for tick := uint64(1); tick <= 500; tick++ {
		hub.Advance(context.Background(), sim.LoopTickContext{Tick: tick, Delta: 0.05})
	}
	if frames := sess.framesOfType(t, proto.TypePlayerState); len(frames) != 0 {
		t.Fatalf("expected no state frames from the tick, got %d", len(frames))
	}
}

func TestPositionsStayInsideWorld(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	speeds := []state.Vec2{state.V(1e6, -1e6), state.V(-333, 17), state.V(0.1, 250), state.V(-5e3, -5e3)}
	sessions := make([]*fakeSession, len(speeds))
	for i := range speeds {
		sessions[i] = newFakeSession()
		mustJoin(t, hub, sessions[i], "p")
	}

	size := hub.World().Size
	for tick := uint64(1); tick <= 50; tick++ {
		for i, speed := range speeds {
			if tick%5 == 0 {
				hub.move(context.Background(), sessions[i].ID(), speed.Mul(-1))
			} else if tick%3 == 0 {
				hub.move(context.Background(), sessions[i].ID(), speed)
			}
		}
		hub.Advance(context.Background(), sim.LoopTickContext{Tick: tick, Delta: 0.07})
		for _, player := range hub.DiagnosticsSnapshot() {
			for axis := 0; axis < 2; axis++ {
				if player.Pos[axis] < 0 || player.Pos[axis] > size {
					t.Fatalf("tick %d: position %v outside the world", tick, player.Pos)
				}
			}
		}
	}
}

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

func TestRunSimulationAdvancesByMeasuredDelta(t *testing.T) {
	hub, clock := newTestHub(t, nil)
	sess := newFakeSession()
	mustJoin(t, hub, sess, "mover")
	hub.move(context.Background(), sess.ID(), state.V(10, 0))

	ticker := &manualTicker{ch: make(chan time.Time)}
	var once sync.Once
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hub.RunSimulation(ctx, sim.WithTicker(func(time.Duration) sim.Ticker {
			once.Do(func() { close(started) })
			return ticker
		}))
	}()
	<-started

	clock.Advance(2 * time.Second)
	ticker.ch <- clock.Now()
	waitFor(t, "tick to complete", func() bool { return hub.TelemetrySnapshot().Tick == 1 })

	if got := hub.DiagnosticsSnapshot()[0].Pos; got != [2]float64{120, 100} {
		t.Fatalf("expected player to move 20 units, got %v", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}
