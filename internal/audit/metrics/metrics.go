package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	Written        prometheus.Counter
	Dropped        *prometheus.CounterVec
	AppendDuration prometheus.Histogram
	CircuitOpen    prometheus.Gauge
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Written: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_audit_events_written_total",
			Help: "Audit events written to the sink",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_audit_events_dropped_total",
			Help: "Audit events dropped, by reason (buffer_full, circuit_open, sink_error)",
		}, []string{"reason"}),
		AppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimgate_audit_append_duration_seconds",
			Help:    "Duration of one batch append to the sink",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "claimgate_audit_circuit_open",
			Help: "Audit sink circuit state (0=closed, 1=open)",
		}),
	}
}

// ObserveAppend records one batch append. Call with time.Now() at the start.
func (m *Metrics) ObserveAppend(start time.Time) {
	m.AppendDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
