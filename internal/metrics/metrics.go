// Package metrics exposes Prometheus instruments for ingestion and
// fulfillment.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vinopack"

// Message handling outcomes.
const (
	ResultHandled   = "handled"
	ResultIgnored   = "ignored"
	ResultUnmatched = "unmatched"
	ResultMalformed = "malformed"
)

// Eviction reasons.
const (
	EvictIdle     = "idle"
	EvictCapacity = "capacity"
)

type Metrics struct {
	OrdersIngested       prometheus.Counter
	PublishFailures      *prometheus.CounterVec
	MessagesReceived     *prometheus.CounterVec
	StatusUpdates        *prometheus.CounterVec
	StatusUpdateFailures *prometheus.CounterVec
	TrackedOrders        prometheus.Gauge
	Evictions            *prometheus.CounterVec
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_ingested_total",
			Help:      "Orders persisted by the ingestion handler.",
		}),
		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Messages that could not be published.",
		}, []string{"channel"}),
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound device messages by outcome.",
		}, []string{"channel", "result"}),
		StatusUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Order status updates issued by the coordinator.",
		}, []string{"status"}),
		StatusUpdateFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_update_failures_total",
			Help:      "Order status updates the store rejected.",
		}, []string{"status"}),
		TrackedOrders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_orders",
			Help:      "Orders the coordinator is currently correlating feedback for.",
		}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracked_order_evictions_total",
			Help:      "Tracked orders dropped before finishing.",
		}, []string{"reason"}),
	}
}

// NewUnregistered returns instruments attached to a private registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
