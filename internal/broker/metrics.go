package broker

import (
	"github.com/prometheus/client_golang/prometheus"

	"coffeefleet-sim/internal/telemetry"
)

// Metrics holds the broker's Prometheus collectors.
type Metrics struct {
	Published       *prometheus.CounterVec
	Delivered       prometheus.Counter
	HandlerFailures prometheus.Counter
	Rejected        prometheus.Counter
	Subscriptions   prometheus.Gauge
	ConnectionState prometheus.Gauge
	ConnectAttempts prometheus.Counter
}

// NewMetrics creates the broker collectors and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coffeefleet",
				Subsystem: "broker",
				Name:      "published_total",
				Help:      "Total number of messages published, by payload kind",
			},
			[]string{"kind"},
		),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "broker",
			Name:      "delivered_total",
			Help:      "Total number of successful handler invocations",
		}),
		HandlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "broker",
			Name:      "handler_failures_total",
			Help:      "Total number of handler invocations that returned an error or panicked",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "broker",
			Name:      "rejected_total",
			Help:      "Total number of publishes rejected while disconnected",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coffeefleet",
			Subsystem: "broker",
			Name:      "subscriptions",
			Help:      "Number of live subscriptions",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coffeefleet",
			Subsystem: "broker",
			Name:      "connection_state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected)",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "broker",
			Name:      "connect_attempts_total",
			Help:      "Total number of connection attempts started",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Published,
			m.Delivered,
			m.HandlerFailures,
			m.Rejected,
			m.Subscriptions,
			m.ConnectionState,
			m.ConnectAttempts,
		)
	}
	return m
}

// RecordPublished increments the published counter for a payload kind.
func (m *Metrics) RecordPublished(kind telemetry.Kind) {
	m.Published.WithLabelValues(string(kind)).Inc()
}

// RecordState updates the connection state gauge.
func (m *Metrics) RecordState(s State) {
	m.ConnectionState.Set(float64(s))
}
