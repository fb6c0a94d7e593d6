package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_open_connections",
			Help: "Client connections currently open on this instance",
		},
	)

	MalformedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_malformed_frames_total",
			Help: "Inbound frames dropped because they could not be decoded",
		},
	)

	// Relay metrics
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_published_total",
			Help: "Messages published to the broker",
		},
		[]string{"kind", "result"}, // kind: "direct" or "community"; result: "ok" or "error"
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_deliveries_total",
			Help: "Local delivery attempts during fan-out",
		},
		[]string{"result"}, // "delivered" or "missed"
	)

	UnreadIncrements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_unread_increments_total",
			Help: "Direct messages that reached no open receiver session",
		},
	)

	BrokerSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_broker_subscriptions",
			Help: "Broker channels this instance is subscribed to",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatrelay_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
