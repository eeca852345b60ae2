// Package metrics provides Prometheus metrics for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts executions by final status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "executions_total",
			Help:      "Total number of executions by final status",
		},
		[]string{"status"}, // "completed", "failed", "cancelled", "paused"
	)

	// ExecutionsActive tracks currently running executions.
	ExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "executions_active",
			Help:      "Number of currently running executions",
		},
	)

	// ExecutionDuration tracks execution duration.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "execution_duration_seconds",
			Help:      "Execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// JobsTotal counts jobs executed by final status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "jobs_total",
			Help:      "Total number of jobs executed by status",
		},
		[]string{"status"}, // "completed", "failed", "skipped", "cancelled"
	)

	// JobDuration tracks job execution duration.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "job_duration_seconds",
			Help:      "Job execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type", "status"},
	)

	// JobRetries tracks retry attempts per job.
	JobRetries = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "job_retries",
			Help:      "Number of retry attempts per job",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"final_status"},
	)

	// CacheRequestsTotal counts cache lookups by result.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "cache_requests_total",
			Help:      "Total number of job cache lookups",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// ResourceViolationsTotal counts resource violations by kind and severity.
	ResourceViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "resource_violations_total",
			Help:      "Total number of resource limit violations",
		},
		[]string{"kind", "severity"},
	)

	// CheckpointsTotal counts checkpoints by trigger.
	CheckpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoints created",
		},
		[]string{"trigger"},
	)

	// FanOutJobsGenerated tracks how many jobs fan-out expansions produce.
	FanOutJobsGenerated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "fan_out_jobs_generated",
			Help:      "Number of jobs generated per fan-out expansion",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	// EventsTotal counts events emitted by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "events_total",
			Help:      "Total number of events emitted",
		},
		[]string{"type"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StoreOperations counts store operations.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "result"}, // operation: create, update, get; result: success, error
	)

	// QueueDepth tracks jobs pending execution across all executions.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "queue_depth",
			Help:      "Number of jobs pending execution",
		},
	)

	// SSEActiveConnections tracks open event stream connections.
	SSEActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "sse_active_connections",
			Help:      "Number of active SSE connections",
		},
	)

	// SSEConnectionDuration tracks how long event stream connections stay open.
	SSEConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "forgeml",
			Subsystem: "orchestrator",
			Name:      "sse_connection_duration_seconds",
			Help:      "SSE connection duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)
)
