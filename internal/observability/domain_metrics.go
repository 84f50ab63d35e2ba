package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finchat_chat_requests_total",
			Help: "Total number of chat requests processed.",
		},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finchat_generation_latency_ms",
			Help:    "SQL generation call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finchat_query_latency_ms",
			Help:    "Warehouse query execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 15000, 30000},
		},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finchat_validation_rejections_total",
			Help: "Total number of candidate queries rejected by the validator.",
		},
		[]string{"reason"},
	)
	resultTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finchat_result_truncations_total",
			Help: "Total number of query results truncated at the row cap.",
		},
	)
	poolExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finchat_pool_exhausted_total",
			Help: "Total number of queries rejected because the connection pool was saturated.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		generationLatencyMs,
		queryLatencyMs,
		validationRejectionsTotal,
		resultTruncationsTotal,
		poolExhaustedTotal,
	)
}

func ObserveChatRequest() {
	chatRequestsTotal.Inc()
}

func ObserveGenerationLatency(elapsed time.Duration) {
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveQueryLatency(elapsed time.Duration) {
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementValidationRejection(reason string) {
	validationRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncrementResultTruncation() {
	resultTruncationsTotal.Inc()
}

func IncrementPoolExhausted() {
	poolExhaustedTotal.Inc()
}
