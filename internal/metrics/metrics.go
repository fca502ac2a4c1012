// Package metrics provides Prometheus instrumentation for the messaging
// core: connection and subscriber gauges, message/fanout counters, and an
// append latency histogram.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amj_messaging_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// SubscribersGauge tracks the number of distinct users with a live subscription.
	SubscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amj_messaging_subscribed_users",
		Help: "Current number of users with at least one fanout subscription",
	})

	// MessagesTotal counts appended messages, labeled by message type.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amj_messaging_messages_total",
		Help: "Total number of messages appended",
	}, []string{"type"})

	// FanoutEventsTotal counts delivered fanout events by kind and channel.
	FanoutEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amj_messaging_fanout_events_total",
		Help: "Total number of fanout events delivered",
	}, []string{"kind", "channel"})

	// AppendLatency records message append latency in seconds.
	AppendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amj_messaging_append_latency_seconds",
		Help:    "Message append latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// PendingEnqueuedTotal counts events queued for offline users.
	PendingEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amj_messaging_pending_enqueued_total",
		Help: "Total number of events queued for offline delivery",
	})

	// PendingFlushedTotal counts queued events delivered after reconnect.
	PendingFlushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amj_messaging_pending_flushed_total",
		Help: "Total number of queued events flushed to reconnected users",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		SubscribersGauge,
		MessagesTotal,
		FanoutEventsTotal,
		AppendLatency,
		PendingEnqueuedTotal,
		PendingFlushedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
