package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics records pipeline telemetry for one process.
type SearchMetrics struct {
	service string

	searchesTotal *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	fallbackTotal *prometheus.CounterVec
	cacheHitTotal *prometheus.CounterVec
}

func NewSearchMetrics(registerer prometheus.Registerer, service string) *SearchMetrics {
	searchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Completed searches by query type and outcome.",
		},
		[]string{"service", "query_type", "success"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "stage"},
	)
	fallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "fallback_answers_total",
			Help:      "Answers built without the language model.",
		},
		[]string{"service", "query_type"},
	)
	cacheHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "answer_cache_hits_total",
			Help:      "Answers served from the answer cache.",
		},
		[]string{"service"},
	)

	registerer.MustRegister(searchesTotal, stageDuration, fallbackTotal, cacheHitTotal)

	return &SearchMetrics{
		service:       service,
		searchesTotal: searchesTotal,
		stageDuration: stageDuration,
		fallbackTotal: fallbackTotal,
		cacheHitTotal: cacheHitTotal,
	}
}

func (m *SearchMetrics) ObserveStage(stage string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(elapsed.Seconds())
}

func (m *SearchMetrics) ObserveSearch(queryType string, success, usedFallback, cached bool) {
	if queryType == "" {
		queryType = "unknown"
	}
	m.searchesTotal.WithLabelValues(m.service, queryType, strconv.FormatBool(success)).Inc()
	if usedFallback {
		m.fallbackTotal.WithLabelValues(m.service, queryType).Inc()
	}
	if cached {
		m.cacheHitTotal.WithLabelValues(m.service).Inc()
	}
}
