package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ParsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepdroid_parses_total",
		Help: "Model replies parsed, labelled by the recovery stage that succeeded (none on failure).",
	}, []string{"stage"})

	ActionsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepdroid_actions_dispatched_total",
		Help: "Dispatched actions, labelled by verb and status.",
	}, []string{"verb", "status"})

	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stepdroid_action_duration_ms",
		Help:    "Wall time of one dispatched action including settle delays, in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 3000, 5000, 10000},
	}, []string{"verb"})

	Similarity = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stepdroid_effect_similarity",
		Help:    "Before/after similarity scores measured by the effect verifier.",
		Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 1},
	})

	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepdroid_steps_total",
		Help: "Workflow steps visited, labelled by outcome (success, failure, skipped).",
	}, []string{"outcome"})

	ConditionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepdroid_condition_attempts_total",
		Help: "Condition evaluations, labelled by condition type and result.",
	}, []string{"type", "result"})

	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepdroid_runs_total",
		Help: "Workflow runs that ended, labelled by final state.",
	}, []string{"state"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stepdroid_queue_depth",
		Help: "Workflow runs waiting for the device worker.",
	})

	PlannerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepdroid_planner_requests_total",
		Help: "Planner calls, labelled by provider and status.",
	}, []string{"provider", "status"})
)
