package server

import (
	"sync/atomic"
	"time"

	"arena/server/internal/telemetry"
)

type telemetryCounters struct {
	metrics telemetry.Metrics

	messagesSent       atomic.Uint64
	bytesSent          atomic.Uint64
	deliveryFailures   atomic.Uint64
	joins              atomic.Uint64
	leaves             atomic.Uint64
	joinsRejected      atomic.Uint64
	malformed          atomic.Uint64
	unsupported        atomic.Uint64
	moves              atomic.Uint64
	fires              atomic.Uint64
	shotsHit           atomic.Uint64
	shotsRejected      atomic.Uint64
	tickDurationMicros atomic.Int64
	lastTick           atomic.Uint64
}

// TelemetrySnapshot is the hub section of the diagnostics payload.
type TelemetrySnapshot struct {
	MessagesSent       uint64 `json:"messagesSent"`
	BytesSent          uint64 `json:"bytesSent"`
	DeliveryFailures   uint64 `json:"deliveryFailures"`
	Joins              uint64 `json:"joins"`
	Leaves             uint64 `json:"leaves"`
	JoinsRejected      uint64 `json:"joinsRejected"`
	MalformedMessages  uint64 `json:"malformedMessages"`
	UnsupportedIntents uint64 `json:"unsupportedIntents"`
	Moves              uint64 `json:"moves"`
	Fires              uint64 `json:"fires"`
	ShotsHit           uint64 `json:"shotsHit"`
	ShotsRejected      uint64 `json:"shotsRejected"`
	TickDurationMicros int64  `json:"tickDurationMicros"`
	Tick               uint64 `json:"tick"`
}

func newTelemetryCounters(metrics telemetry.Metrics) *telemetryCounters {
	return &telemetryCounters{metrics: metrics}
}

func (t *telemetryCounters) add(counter *atomic.Uint64, key string, delta uint64) {
	counter.Add(delta)
	if t.metrics != nil {
		t.metrics.Add(key, delta)
	}
}

func (t *telemetryCounters) RecordDelivery(messages, bytes int) {
	if messages <= 0 {
		return
	}
	t.add(&t.messagesSent, telemetry.MetricMessagesSent, uint64(messages))
	t.add(&t.bytesSent, telemetry.MetricBytesSent, uint64(max(bytes, 0)))
}

func (t *telemetryCounters) RecordDeliveryFailure() {
	t.add(&t.deliveryFailures, telemetry.MetricDeliveryFailures, 1)
}

func (t *telemetryCounters) RecordJoin(players int) {
	t.add(&t.joins, telemetry.MetricJoinsTotal, 1)
	t.storePlayers(players)
}

func (t *telemetryCounters) RecordLeave(players int) {
	t.add(&t.leaves, telemetry.MetricLeavesTotal, 1)
	t.storePlayers(players)
}

func (t *telemetryCounters) RecordJoinRejected() {
	t.add(&t.joinsRejected, telemetry.MetricJoinsRejected, 1)
}

func (t *telemetryCounters) RecordMalformed() {
	t.add(&t.malformed, telemetry.MetricMalformedMessages, 1)
}

func (t *telemetryCounters) RecordUnsupported() {
	t.add(&t.unsupported, telemetry.MetricIntentsUnsupported, 1)
}

func (t *telemetryCounters) RecordMove() {
	t.add(&t.moves, telemetry.MetricIntentsMove, 1)
}

func (t *telemetryCounters) RecordFire(hit, rejected bool) {
	t.add(&t.fires, telemetry.MetricIntentsFire, 1)
	if hit {
		t.add(&t.shotsHit, telemetry.MetricShotsHit, 1)
	}
	if rejected {
		t.add(&t.shotsRejected, telemetry.MetricShotsRejected, 1)
	}
}

func (t *telemetryCounters) RecordTick(tick uint64, duration time.Duration) {
	t.lastTick.Store(tick)
	t.tickDurationMicros.Store(max(duration.Microseconds(), 0))
}

func (t *telemetryCounters) storePlayers(players int) {
	if t.metrics != nil {
		t.metrics.Store(telemetry.MetricPlayersActive, uint64(max(players, 0)))
	}
}

func (t *telemetryCounters) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		MessagesSent:       t.messagesSent.Load(),
		BytesSent:          t.bytesSent.Load(),
		DeliveryFailures:   t.deliveryFailures.Load(),
		Joins:              t.joins.Load(),
		Leaves:             t.leaves.Load(),
		JoinsRejected:      t.joinsRejected.Load(),
		MalformedMessages:  t.malformed.Load(),
		UnsupportedIntents: t.unsupported.Load(),
		Moves:              t.moves.Load(),
		Fires:              t.fires.Load(),
		ShotsHit:           t.shotsHit.Load(),
		ShotsRejected:      t.shotsRejected.Load(),
		TickDurationMicros: t.tickDurationMicros.Load(),
		Tick:               t.lastTick.Load(),
	}
}
