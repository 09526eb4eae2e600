package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lanchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanchat_connections_active",
			Help: "Open websocket connections",
		},
	)

	OnlineEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanchat_online_entries",
			Help: "Identified connections in the roster",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_auth_failures_total",
			Help: "Connection attempts refused before upgrade",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_rate_limited_total",
			Help: "Client events dropped by the per-connection limiter",
		},
	)

	SlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_slow_consumers_total",
			Help: "Connections closed because their send queue was full",
		},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_messages_sent_total",
			Help: "Messages persisted and fanned out",
		},
		[]string{"scope"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_deliveries_total",
			Help: "Message events enqueued to connections",
		},
		[]string{"scope"},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_send_failures_total",
			Help: "Sends rejected or failed",
		},
		[]string{"reason"}, // "validation", "persistence"
	)

	HistoryPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_history_pages_total",
			Help: "History pages served",
		},
		[]string{"scope"},
	)

	// Store metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lanchat_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op", "result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_events_published_total",
			Help: "Message events handed to the external sink",
		},
		[]string{"sink", "result"},
	)
)
