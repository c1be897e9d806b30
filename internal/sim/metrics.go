package sim

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the driver and sink collectors.
type Metrics struct {
	Ticks         prometheus.Counter
	Running       prometheus.Gauge
	PublishErrors prometheus.Counter
	SinkErrors    *prometheus.CounterVec
	Replayed      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "sim",
			Name:      "ticks_total",
			Help:      "Telemetry rounds run by the simulation driver.",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coffeefleet",
			Subsystem: "sim",
			Name:      "driver_running",
			Help:      "1 while the simulation driver is ticking.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "sim",
			Name:      "publish_errors_total",
			Help:      "Publishes that failed for reasons other than a disconnect.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "sim",
			Name:      "sink_errors_total",
			Help:      "Messages a recorder sink failed to write.",
		}, []string{"sink"}),
		Replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeefleet",
			Subsystem: "sim",
			Name:      "replayed_total",
			Help:      "Messages re-published from a recorded log.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.Running, m.PublishErrors, m.SinkErrors, m.Replayed)
	}
	return m
}
