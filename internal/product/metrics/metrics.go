package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the product info cache and its deduplicated fetches.
type Metrics struct {
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	SharedWaits      prometheus.Counter
	CorruptEvictions prometheus.Counter
	FetchDuration    prometheus.Histogram
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_product_cache_hits_total",
			Help: "Product lookups served from the durable cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_product_cache_misses_total",
			Help: "Product lookups that needed the backend",
		}),
		SharedWaits: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_product_shared_fetch_total",
			Help: "Lookups answered by a fetch shared with other callers",
		}),
		CorruptEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimgate_product_cache_corrupt_evictions_total",
			Help: "Cached product entries dropped because they failed to decode",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimgate_product_fetch_duration_seconds",
			Help:    "Duration of backend product fetches",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// ObserveFetch records one backend fetch. Call with time.Now() at the start.
func (m *Metrics) ObserveFetch(start time.Time) {
	m.FetchDuration.Observe(time.Since(start).Seconds())
}
