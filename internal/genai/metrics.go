package genai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promtii",
			Name:      "generation_requests_total",
			Help:      "Total LLM generation attempts",
		},
		[]string{"status"},
	)

	generationTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promtii",
			Name:      "generation_tokens_total",
			Help:      "Total tokens charged against the key pool",
		},
	)

	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "promtii",
			Name:      "generation_duration_seconds",
			Help:      "Duration of LLM generation calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~64s
		},
	)

	keyDemotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promtii",
			Name:      "key_demotions_total",
			Help:      "API keys demoted after classified provider errors",
		},
		[]string{"reason"},
	)
)
