// Package observability exposes the Prometheus instrumentation shared by
// the orchestrator and the HTTP surface.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector so components receive one handle
// instead of package-level globals.
type Metrics struct {
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      prometheus.Histogram
	ToolRounds        prometheus.Histogram
	ToolCallsTotal    *prometheus.CounterVec
	TierFailuresTotal *prometheus.CounterVec
	Summarizations    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "turns_total",
			Help:      "User turns processed, labeled by outcome.",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chimera",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end latency of one user turn.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ToolRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chimera",
			Name:      "tool_rounds_per_turn",
			Help:      "Model round-trips needed before a final answer.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "tool_calls_total",
			Help:      "Tool invocations, labeled by tool name and status.",
		}, []string{"tool", "status"}),
		TierFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "memory_tier_failures_total",
			Help:      "Degraded memory tier operations, labeled by tier.",
		}, []string{"tier"}),
		Summarizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "summarizations_total",
			Help:      "Background summarization runs, labeled by outcome.",
		}, []string{"outcome"}),
	}
}
