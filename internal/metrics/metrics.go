// Package metrics exposes Prometheus collectors for the record store and the
// gRPC surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg prometheus.Gatherer

	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	rpcs          *prometheus.CounterVec
	notifications prometheus.Counter
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		reg: reg,
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Record store operations by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Record store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "notifications_emitted_total",
			Help:      "Notifications written as a side effect of record changes.",
		}),
	}
	reg.MustRegister(m.storeOps, m.storeDuration, m.rpcs, m.notifications)
	return m
}

// ObserveStore records one store operation. A nil receiver is a no-op so
// callers can leave metrics unset.
func (m *Metrics) ObserveStore(collection, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOps.WithLabelValues(collection, op, result).Inc()
	m.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveRPC(method, code string) {
	if m == nil {
		return
	}
	m.rpcs.WithLabelValues(method, code).Inc()
}

func (m *Metrics) NotificationEmitted() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
