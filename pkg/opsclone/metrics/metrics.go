// Package metrics exposes the Prometheus collectors shared by the pipeline,
// the store and the webhook dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsclone_chat_requests_total",
			Help: "Total number of orchestrated chat requests",
		},
		[]string{"mode", "outcome"},
	)

	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsclone_chat_duration_seconds",
			Help:    "End-to-end orchestration latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"mode"},
	)

	CompletionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsclone_completion_calls_total",
			Help: "Total number of completion service calls",
		},
		[]string{"purpose", "status"},
	)

	RetrievalSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsclone_retrieval_source_total",
			Help: "Retrieval results by the source that served them",
		},
		[]string{"source"},
	)

	StoreSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsclone_store_searches_total",
			Help: "Document store searches by strategy (fts, like) and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsclone_webhook_deliveries_total",
			Help: "Webhook deliveries by payload kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	WebhookAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsclone_webhook_attempts_total",
			Help: "Total number of outbound webhook POST attempts",
		},
	)

	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsclone_scheduled_runs_total",
			Help: "Scheduled job executions by job kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)
