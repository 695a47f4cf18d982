package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks per-file upload outcomes and latency.
type Metrics struct {
	Files        *prometheus.CounterVec
	FileDuration prometheus.Histogram
	BatchAborted prometheus.Counter
}

// New registers the upload metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the upload metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Files: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_upload_files_total",
			Help: "Uploaded files by outcome (ok, timeout, oversized, malformed, server, generic)",
		}, []string{"outcome"}),
		FileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimgate_upload_file_duration_seconds",
			Help:    "Duration of a single file upload",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		BatchAborted: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_upload_batches_aborted_total",
			Help: "Batches stopped early because a file failed",
		}),
	}
}

// ObserveFile records one file's outcome and duration.
// Call with time.Now() taken before the request.
func (m *Metrics) ObserveFile(outcome string, start time.Time) {
	m.Files.WithLabelValues(outcome).Inc()
	m.FileDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementBatchAborted() {
	m.BatchAborted.Inc()
}
