package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiva_query_cache_lookups_total",
			Help: "Query cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aiva_query_cache_evictions_total",
			Help: "Expired query cache entries removed by the sweeper.",
		},
	)
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aiva_query_cache_entries",
			Help: "Current number of live query cache entries.",
		},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiva_query_executions_total",
			Help: "Query executions by dialect and outcome.",
		},
		[]string{"dialect", "outcome"},
	)
	queryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aiva_query_duration_ms",
			Help:    "External query execution latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"dialect"},
	)
	insightTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aiva_insight_tokens_total",
			Help: "Total language-model tokens reported across insight calls.",
		},
	)
	insightFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aiva_insight_fallbacks_total",
			Help: "Total degraded answers produced by the fallback path.",
		},
	)
	insightDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aiva_insight_pipeline_duration_ms",
			Help:    "End-to-end insight pipeline latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		cacheLookupsTotal,
		cacheEvictionsTotal,
		cacheEntries,
		queryExecutionsTotal,
		queryDurationMs,
		insightTokensTotal,
		insightFallbacksTotal,
		insightDurationMs,
	)
}

func ObserveCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

func ObserveCacheEvictions(count int) {
	cacheEvictionsTotal.Add(float64(count))
}

func SetCacheEntries(count int) {
	cacheEntries.Set(float64(count))
}

func ObserveQueryExecution(dialect string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	queryExecutionsTotal.WithLabelValues(dialect, outcome).Inc()
	if err == nil {
		queryDurationMs.WithLabelValues(dialect).Observe(float64(elapsed.Milliseconds()))
	}
}

func ObserveInsight(tokens int, fallback bool, elapsed time.Duration) {
	if tokens > 0 {
		insightTokensTotal.Add(float64(tokens))
	}
	if fallback {
		insightFallbacksTotal.Inc()
	}
	insightDurationMs.Observe(float64(elapsed.Milliseconds()))
}
