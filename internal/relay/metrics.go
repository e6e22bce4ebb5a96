package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callroom"

// Metrics are the relay server's prometheus collectors, kept on a private
// registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	rooms     prometheus.Gauge
	members   prometheus.Gauge
	forwarded *prometheus.CounterVec
	buffered  prometheus.Counter
	dropped   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "total",
			Help:      "Rooms with at least one member.",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "member",
			Name:      "total",
			Help:      "Joined room members.",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "forwarded_total",
			Help:      "Signaling messages delivered to the other member.",
		}, []string{"type"}),
		buffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "buffered_total",
			Help:      "Signaling messages held until the other member connects.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "dropped_total",
			Help:      "Signaling messages that were not delivered.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(m.rooms, m.members, m.forwarded, m.buffered, m.dropped)
	return m
}

// Registry exposes the collectors, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
