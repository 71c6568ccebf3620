// Package metrics exposes Prometheus counters for scoring runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resume_match"

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Outcomes       *prometheus.CounterVec
	Retries        *prometheus.CounterVec
	CacheEvents    *prometheus.CounterVec
	BatchPolls     *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	ScoreDuration  prometheus.Histogram
	InflightScores prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Resume outcomes by strategy and error kind (empty kind on success).",
		}, []string{"strategy", "kind"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried remote calls by operation and error kind.",
		}, []string{"operation", "kind"}),
		CacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_cache_events_total",
			Help:      "Job context cache hits, misses, builds and invalidations.",
		}, []string{"event"}),
		BatchPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_polls_total",
			Help:      "Batch job polls by reported state.",
		}, []string{"state"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of bulk runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"strategy"}),
		ScoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_duration_seconds",
			Help:      "Duration of single scoring calls including retries.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		InflightScores: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_scores",
			Help:      "Scoring calls currently in flight.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Outcome(strategy, kind string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(strategy, kind).Inc()
}

func (m *Metrics) Retry(operation, kind string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) Cache(event string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) BatchPoll(state string) {
	if m == nil {
		return
	}
	m.BatchPolls.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveRun(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// TrackScore marks a scoring call in flight and returns the func that ends it.
func (m *Metrics) TrackScore() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.InflightScores.Inc()
	return func() {
		m.InflightScores.Dec()
		m.ScoreDuration.Observe(time.Since(start).Seconds())
	}
}
