package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime Hub Metrics
var (
	// RealtimeConnectedClients tracks the current number of live connections
	RealtimeConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connected_clients",
			Help: "Current number of live realtime connections",
		},
	)

	// RealtimeActiveSubscriptions tracks the current number of channel subscriptions
	RealtimeActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_subscriptions",
			Help: "Current number of active channel subscriptions",
		},
	)

	// RealtimeConnectionsTotal tracks connection attempts by transport and result
	RealtimeConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Total connection attempts by transport and result (accepted/rejected)",
		},
		[]string{"transport", "result"},
	)

	// RealtimeConnectionsClosedTotal tracks closed connections by reason
	RealtimeConnectionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_closed_total",
			Help: "Total closed connections by reason (client_disconnect/send_failed/heartbeat_failed/write_error/shutdown)",
		},
		[]string{"reason"},
	)

	// RealtimeFramesDeliveredTotal tracks frames successfully queued for delivery
	RealtimeFramesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_frames_delivered_total",
			Help: "Total data frames successfully queued to client connections",
		},
	)

	// RealtimeFramesDroppedTotal tracks frames dropped by reason
	RealtimeFramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_dropped_total",
			Help: "Total frames dropped by reason (queue_full/write_error)",
		},
		[]string{"reason"},
	)

	// RealtimeDispatchDuration tracks fan-out duration per dispatched event
	RealtimeDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_dispatch_duration_seconds",
			Help:    "Event fan-out duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// RealtimeHeartbeatFailuresTotal tracks heartbeat sends that failed
	RealtimeHeartbeatFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_heartbeat_failures_total",
			Help: "Total heartbeat frames that could not be queued (client not draining)",
		},
	)
)

// Ingest Metrics
var (
	// IngestEventsTotal tracks ingested events by channel and result
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total ingested events by channel and result (accepted/invalid)",
		},
		[]string{"channel", "result"},
	)

	// IngestDeliveredClients tracks per-event delivery counts
	IngestDeliveredClients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_delivered_clients",
			Help:    "Number of clients an ingested event was delivered to",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

// Analytics Metrics
var (
	// AnalyticsBufferSize tracks the current analytics window size
	AnalyticsBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_buffer_size",
			Help: "Current number of records in the analytics window",
		},
	)

	// AnalyticsEvictionsTotal tracks records evicted from the full window
	AnalyticsEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_evictions_total",
			Help: "Total records evicted from the analytics window (FIFO overflow)",
		},
	)
)

// Change Feed Metrics
var (
	// ChangefeedNotificationsTotal tracks row-change notifications by source and table
	ChangefeedNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changefeed_notifications_total",
			Help: "Total database change notifications by source and table",
		},
		[]string{"source", "table"},
	)

	// ChangefeedErrorsTotal tracks malformed or undeliverable notifications
	ChangefeedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changefeed_errors_total",
			Help: "Total change feed errors by source and kind (decode/ingest)",
		},
		[]string{"source", "kind"},
	)

	// ChangefeedReconnectsTotal tracks reconnection attempts after feed loss
	ChangefeedReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changefeed_reconnects_total",
			Help: "Total change feed reconnection attempts by source",
		},
		[]string{"source"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Request Metrics
// Note: http_errors_total{type} is provided by the internal/errors package
