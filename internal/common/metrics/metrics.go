// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_queries_total",
			Help: "Total number of queries answered, by outcome",
		},
		[]string{"outcome"},
	)

	TemplateMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_template_matches_total",
			Help: "Total number of confident template matches",
		},
		[]string{"template_id"},
	)

	ExecutionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_execution_attempts_total",
			Help: "Total number of datasource execution attempts",
		},
		[]string{"datasource", "result"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_breaker_transitions_total",
			Help: "Circuit breaker state transitions per datasource",
		},
		[]string{"datasource", "state"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gateway_stage_duration_seconds",
			Help: "Duration of each query pipeline stage in seconds",
		},
		[]string{"stage"},
	)
)
