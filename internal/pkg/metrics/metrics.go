// Package metrics holds the Prometheus collectors of the relay. All collectors are registered with
// the default registry at init and are safe for concurrent use.
//
// Label sets are fixed and small:
//
//   - route:  media | immediate | command | rejected
//   - target: destination | audit
//   - method: Bot API method name (sendMessage, sendMediaGroup, ...)
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	RouteMedia     = "media"
	RouteImmediate = "immediate"
	RouteCommand   = "command"
	RouteRejected  = "rejected"

	TargetDestination = "destination"
	TargetAudit       = "audit"
)

var (
	// Messages counts inbound messages by the path the dispatcher sent them down.
	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Inbound messages by dispatch route.",
		},
		[]string{"route"},
	)

	BatchesFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_batches_flushed_total",
			Help: "Albums flushed to the destination and audit chats.",
		},
	)

	BatchItems = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_batch_items",
			Help:    "Number of media items per flushed album.",
			Buckets: []float64{1, 2, 3, 4, 5, 10, 20, 50},
		},
	)

	// BatchLatency is the time from the first admitted item to the end of the flush.
	BatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_batch_latency_seconds",
			Help:    "Time from opening an album to finishing its flush.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Failed outbound sends by target chat.",
		},
		[]string{"target"},
	)

	OpenGroups = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_open_groups",
			Help: "Albums currently waiting for their flush.",
		},
	)

	TelegramRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_telegram_request_duration_seconds",
			Help:    "Duration of Bot API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(Messages, BatchesFlushed, BatchItems, BatchLatency, SendFailures, OpenGroups, TelegramRequests)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
