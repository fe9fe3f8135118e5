package server

import (
	"context"
	"errors"

	"arena/server/internal/net/proto"
	"arena/server/internal/registry"
	"arena/server/internal/sim"
	"arena/server/logging"
	loggingsimulation "arena/server/logging/simulation"
)

// RunSimulation drives the fixed-period tick until ctx is cancelled.
func (h *Hub) RunSimulation(ctx context.Context, opts ...sim.LoopOption) error {
	loop := h.newLoop(opts...)
	h.logger.Printf("[hub] simulation running every %s", loop.Period())
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (h *Hub) newLoop(opts ...sim.LoopOption) *sim.Loop {
	base := []sim.LoopOption{
		sim.WithClock(h.clock),
		sim.WithTelemetry(h.logger, h.config.Metrics),
	}
	return sim.NewLoop(sim.LoopConfig{
		Period:          h.config.World.UpdatePeriod,
		CatchupMaxTicks: h.config.CatchupMaxTicks,
	}, sim.LoopHooks{
		Step:      func(tc sim.LoopTickContext) { h.Advance(context.Background(), tc) },
		AfterStep: func(result sim.LoopStepResult) { h.afterStep(context.Background(), result) },
	}, append(base, opts...)...)
}

type clampedPlayer struct {
	ref logging.EntityRef
	pos [2]float64
}

// Advance moves every player by tc.Delta seconds in join order. Players that
// hit the world edge are stopped and their state is broadcast; nobody else
// generates traffic.
func (h *Hub) Advance(ctx context.Context, tc sim.LoopTickContext) int {
	h.tick.Store(tc.Tick)
	if h.registry.Empty() {
		return 0
	}

	var (
		clamped  []clampedPlayer
		failures []failedDelivery
	)
	size := h.config.World.Size
	h.registry.Do(func(tx *registry.Tx) {
		conns := tx.Connections()
		for _, entry := range tx.Entries() {
			if !entry.Player.Advance(tc.Delta, size) {
				continue
			}
			status := entry.Player.Status()
			clamped = append(clamped, clampedPlayer{
				ref: logging.PlayerRef(entry.Conn.ID().String()),
				pos: [2]float64(status.Pos),
			})
			data, err := proto.EncodePlayerState(status)
			if err != nil {
				h.logger.Printf("[hub] failed to encode state of %q: %v", status.Name, err)
				continue
			}
			failures = append(failures, h.fanOutLocked(conns, proto.TypePlayerState, data)...)
		}
	})

	for _, c := range clamped {
		loggingsimulation.BoundaryClamp(ctx, h.publisher, tc.Tick, c.ref, loggingsimulation.BoundaryClampPayload{Pos: c.pos})
	}
	h.dropFailed(ctx, failures)
	return len(clamped)
}

func (h *Hub) afterStep(ctx context.Context, result sim.LoopStepResult) {
	h.telemetry.RecordTick(result.Tick, result.Duration)
	if !result.Overrun() {
		h.overrunStreak = 0
		return
	}
	h.overrunStreak++
	ratio := float64(result.Duration) / float64(result.Budget)
	loggingsimulation.TickBudgetOverrun(ctx, h.publisher, result.Tick, loggingsimulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          ratio,
		Streak:         h.overrunStreak,
	})
}

// Tick returns the number of the last completed tick.
func (h *Hub) Tick() uint64 {
	return h.tick.Load()
}
