// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	ConversationTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Messages handled, by kind and resolved intent",
		},
		[]string{"kind", "intent"},
	)

	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_feedback_events_total",
			Help: "Feedback messages, by classification and attribution",
		},
		[]string{"classification", "attributed"},
	)

	ContextDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_context_degraded_total",
			Help: "Turns answered without stored context because the store failed",
		},
		[]string{"operation"},
	)

	ExecutorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_executor_duration_seconds",
			Help:    "Time spent executing resolved intents",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent", "outcome"},
	)
)
