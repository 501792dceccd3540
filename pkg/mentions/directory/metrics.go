package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the Prometheus metrics of a Directory.
type Metrics struct {
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	FetchesTotal     *prometheus.CounterVec
	FetchSeconds     prometheus.Histogram
	CachedScopes     prometheus.Gauge
}

// DefaultMetrics registers the metrics with the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates directory metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mentionkit_directory_cache_hits_total",
			Help: "Candidate loads answered from the cache",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mentionkit_directory_cache_misses_total",
			Help: "Candidate loads that needed an external fetch",
		}),
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentionkit_directory_fetches_total",
				Help: "External candidate fetches by outcome and error code",
			},
			[]string{"outcome", "code"},
		),
		FetchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mentionkit_directory_fetch_seconds",
			Help:    "External candidate fetch latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		CachedScopes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mentionkit_directory_cached_scopes",
			Help: "Scopes whose candidates are currently cached",
		}),
	}
}

// The methods below tolerate a nil receiver so a Directory without
// metrics does not need a guard at every call site.

func (m *Metrics) hit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) fetched(outcome, code string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(outcome, code).Inc()
	m.FetchSeconds.Observe(seconds)
}

func (m *Metrics) cachedScopes(n int) {
	if m != nil {
		m.CachedScopes.Set(float64(n))
	}
}
