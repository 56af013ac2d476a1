// Package metrics exposes room coordinator counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	gatherer   prometheus.Gatherer
	rooms      prometheus.Gauge
	operations *prometheus.CounterVec
	pruned     prometheus.Counter
	recoveries *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rooms",
			Name:      "active",
			Help:      "Rooms currently held by the hub.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rooms",
			Name:      "operations_total",
			Help:      "Client operations by type and result.",
		}, []string{"type", "result"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rooms",
			Name:      "members_pruned_total",
			Help:      "Members removed after a failed delivery.",
		}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rooms",
			Name:      "lock_releases_total",
			Help:      "Locks released by the server, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.rooms, m.operations, m.pruned, m.recoveries)
	reg.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

// Operation counts one client operation; result is "ok" or a reject reason.
func (m *Metrics) Operation(opType, result string) {
	if m != nil {
		m.operations.WithLabelValues(opType, result).Inc()
	}
}

func (m *Metrics) Pruned() {
	if m != nil {
		m.pruned.Inc()
	}
}

func (m *Metrics) LockReleased(reason string) {
	if m != nil {
		m.recoveries.WithLabelValues(reason).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
