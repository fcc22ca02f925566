// Package metrics holds the Prometheus collectors shared across packages.
// Collectors exist from package init so they can be used before Register;
// Register adds them to the default registry once.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "careershift"

var (
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limit checks by preset and outcome (allowed, denied).",
		},
		[]string{"preset", "outcome"},
	)
	RoadmapGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roadmap_generations_total",
			Help:      "Roadmap generation attempts by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)
	RoadmapGenerationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "roadmap_generation_seconds",
			Help:      "Time spent waiting on the language model per generation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	RevisionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revision_transitions_total",
			Help:      "Revision request status changes by resulting status.",
		},
		[]string{"status"},
	)
	PaymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_events_total",
			Help:      "Payment webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

var once sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RateLimitDecisions,
			RoadmapGenerations,
			RoadmapGenerationSeconds,
			RevisionTransitions,
			PaymentEvents,
		)
	})
}
