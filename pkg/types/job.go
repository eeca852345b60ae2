// Package types provides shared types for the orchestration engine.
package types

import (
	"context"
	"time"
)

// JobStatus represents the current state of a job run within an execution.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusSkipped, JobStatusCancelled:
		return true
	}
	return false
}

// JobSpec describes a single job in a pipeline. A JobSpec is immutable once
// submitted; the engine tracks all mutable state on the JobRun.
type JobSpec struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	DependsOn []string               `json:"depends_on,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`

	// Condition gates dispatch. A false result skips the job without
	// invoking its handler; the skip does not cascade to dependents.
	Condition *ConditionSpec `json:"condition,omitempty"`

	Retry     *RetryPolicy    `json:"retry,omitempty"`
	Timeout   time.Duration   `json:"timeout,omitempty"`
	Resources *ResourceLimits `json:"resources,omitempty"`

	// Critical marks a job whose level triggers a checkpoint before dispatch.
	Critical bool `json:"critical,omitempty"`

	// Control flow configurations (at most one should be set)
	FanOut *FanOutSpec `json:"fan_out,omitempty"`
	FanIn  *FanInSpec  `json:"fan_in,omitempty"`
}

// IsControlFlow returns true if this job expands or aggregates the graph
// instead of invoking a registered handler.
func (s *JobSpec) IsControlFlow() bool {
	return s.FanOut != nil || s.FanIn != nil
}

// MaxRetries returns the configured retry ceiling, 0 when no policy is set.
func (s *JobSpec) MaxRetries() int {
	if s.Retry == nil {
		return 0
	}
	return s.Retry.MaxRetries
}

// RetryPolicy controls retry scheduling after a retryable handler failure.
// The delay before attempt n+1 is BaseDelay * BackoffMultiplier^(n-1).
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries"`
	BaseDelay         time.Duration `json:"base_delay,omitempty"`
	BackoffMultiplier float64       `json:"backoff_multiplier,omitempty"`
}

// ResourceLimits bounds a single job's resource consumption. Zero values
// mean unlimited.
type ResourceLimits struct {
	MaxDuration   time.Duration `json:"max_duration_ms,omitempty"`
	MaxMemoryMB   float64       `json:"max_memory_mb,omitempty"`
	MaxCPUPercent float64       `json:"max_cpu_percent,omitempty"`
}

// ConditionFunc is an opaque predicate over the outputs of a job's terminal
// dependencies, keyed by job id. It may block; it receives the execution's
// context for cancellation.
type ConditionFunc func(ctx context.Context, outputs map[string]map[string]interface{}) (bool, error)

// ConditionSpec holds either an expression evaluated by the engine or a
// caller-supplied predicate. When both are set the predicate wins.
type ConditionSpec struct {
	Expression string        `json:"expression,omitempty"`
	Predicate  ConditionFunc `json:"-"`
}

// JobRun tracks the runtime state of one job within an execution. It is
// created when the job first becomes eligible to run and mutated only by the
// execution engine.
type JobRun struct {
	JobID      string                 `json:"job_id"`
	Status     JobStatus              `json:"status"`
	Attempt    int                    `json:"attempt"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Logs       []string               `json:"logs,omitempty"`
	Error      string                 `json:"error,omitempty"`
	CacheHit   bool                   `json:"cache_hit,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}
