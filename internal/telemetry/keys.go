package telemetry

// Metric keys reported by the hub and the tick loop.
const (
	MetricPlayersActive      = "arena_players_active"
	MetricJoinsTotal         = "arena_joins_total"
	MetricLeavesTotal        = "arena_leaves_total"
	MetricJoinsRejected      = "arena_joins_rejected_total"
	MetricMessagesSent       = "arena_messages_sent_total"
	MetricBytesSent          = "arena_bytes_sent_total"
	MetricDeliveryFailures   = "arena_delivery_failures_total"
	MetricIntentsMove        = "arena_intents_move_total"
	MetricIntentsFire        = "arena_intents_fire_total"
	MetricIntentsUnsupported = "arena_intents_unsupported_total"
	MetricMalformedMessages  = "arena_malformed_messages_total"
	MetricShotsHit           = "arena_shots_hit_total"
	MetricShotsRejected      = "arena_shots_rejected_total"
	MetricTicksTotal         = "arena_ticks_total"
	MetricTickDurationMicros = "arena_tick_duration_micros"
	MetricTickOverruns       = "arena_tick_overruns_total"
)
