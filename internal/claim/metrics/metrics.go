package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers wizard sessions and claim submissions.
type Metrics struct {
	SessionsCreated  prometheus.Counter
	SessionsRestored prometheus.Counter
	SealFailures     *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	SubmitDuration   prometheus.Histogram
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_sessions_created_total",
			Help: "Wizard sessions started",
		}),
		SessionsRestored: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_sessions_restored_total",
			Help: "Wizard sessions rebuilt from the durable session store",
		}),
		SealFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_seal_failures_total",
			Help: "Secure field confirmations that could not be sealed",
		}, []string{"field", "reason"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_claim_submissions_total",
			Help: "Claim submissions by outcome",
		}, []string{"outcome"}),
		SubmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimgate_claim_submit_duration_seconds",
			Help:    "Duration of claim submission requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) ObserveSubmit(outcome string, start time.Time) {
	m.Submissions.WithLabelValues(outcome).Inc()
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}
