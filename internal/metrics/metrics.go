// Package metrics exposes Prometheus instrumentation for scoring.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Run origins used as the run duration label. Anything else is recorded
// as OriginOther so the label set stays fixed.
const (
	OriginAPI   = "api"
	OriginCLI   = "cli"
	OriginOther = "other"
)

// Metrics holds the scoring metrics and the registry that owns them.
// Each instance has a private registry so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	scored      *prometheus.CounterVec
	rejected    prometheus.Counter
	scores      prometheus.Histogram
	runDuration *prometheus.HistogramVec
	cacheLookup *prometheus.CounterVec
}

// New registers all metrics in a fresh registry, plus Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		scored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskscore_records_scored_total",
				Help: "Records scored, by risk category.",
			},
			[]string{"category"},
		),
		rejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "riskscore_records_rejected_total",
				Help: "Records rejected as out of domain.",
			},
		),
		scores: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "riskscore_score",
				Help:    "Distribution of risk scores.",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskscore_run_duration_seconds",
				Help:    "Duration of scoring runs by origin.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"origin"},
		),
		cacheLookup: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskscore_cache_lookups_total",
				Help: "Run cache lookups by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordScored counts one scored record.
func (m *Metrics) RecordScored(st domain.ScoredTransaction) {
	m.scored.WithLabelValues(string(st.RiskCategory)).Inc()
	m.scores.Observe(float64(st.RiskScore))
}

// RecordBatch counts every record of a batch and its rejections.
func (m *Metrics) RecordBatch(scored []domain.ScoredTransaction, rejected int) {
	for _, st := range scored {
		m.RecordScored(st)
	}
	m.RecordRejected(rejected)
}

// RecordRejected counts n out-of-domain records.
func (m *Metrics) RecordRejected(n int) {
	if n > 0 {
		m.rejected.Add(float64(n))
	}
}

// RecordRunDuration records how long a run took.
func (m *Metrics) RecordRunDuration(origin string, d time.Duration) {
	switch origin {
	case OriginAPI, OriginCLI:
	default:
		origin = OriginOther
	}
	m.runDuration.WithLabelValues(origin).Observe(d.Seconds())
}

// RecordCacheLookup counts a run cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookup.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
