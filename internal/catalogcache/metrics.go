package catalogcache

import "github.com/prometheus/client_golang/prometheus"

const (
	resultHit  = "hit"
	resultMiss = "miss"

	outcomeOK    = "ok"
	outcomeError = "error"
)

type Metrics struct {
	Lookups       *prometheus.CounterVec
	Fetches       *prometheus.CounterVec
	Shared        prometheus.Counter
	Invalidations prometheus.Counter
}

// NewMetrics builds the cache collectors and registers them on reg when it
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookstore",
			Subsystem: "catalog_cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss).",
		}, []string{"result"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookstore",
			Subsystem: "catalog_cache",
			Name:      "fetches_total",
			Help:      "Network fetches by outcome (ok, error).",
		}, []string{"outcome"}),
		Shared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookstore",
			Subsystem: "catalog_cache",
			Name:      "shared_results_total",
			Help:      "Query results delivered from a fetch shared with other callers.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookstore",
			Subsystem: "catalog_cache",
			Name:      "invalidated_entries_total",
			Help:      "Entries marked stale by tag invalidation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Lookups, m.Fetches, m.Shared, m.Invalidations)
	}
	return m
}

func (m *Metrics) lookup(result string) { m.Lookups.WithLabelValues(result).Inc() }

func (m *Metrics) fetch(outcome string) { m.Fetches.WithLabelValues(outcome).Inc() }
