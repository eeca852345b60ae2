package types

import (
	"time"
)

// ExecutionStatus represents the current state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusPaused    ExecutionStatus = "paused"
)

// Terminal reports whether the execution will never be scheduled again.
// Paused executions are resumable and therefore not terminal.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// Execution is one run of a pipeline. It exclusively owns its JobRuns; no
// other entity mutates them.
type Execution struct {
	ID          string             `json:"id"`
	Name        string             `json:"name,omitempty"`
	Status      ExecutionStatus    `json:"status"`
	Jobs        map[string]*JobRun `json:"jobs"`
	Specs       []JobSpec          `json:"specs,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ExecutionMeta is a lightweight representation of an execution for listing.
type ExecutionMeta struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CheckpointTrigger identifies why a checkpoint was taken.
type CheckpointTrigger string

const (
	CheckpointManual         CheckpointTrigger = "manual"
	CheckpointInterval       CheckpointTrigger = "interval"
	CheckpointJobCompleted   CheckpointTrigger = "job-completed"
	CheckpointLevelCompleted CheckpointTrigger = "level-completed"
	CheckpointBeforeCritical CheckpointTrigger = "before-critical"
)

// Checkpoint is a durable snapshot of an execution: every terminal JobRun
// plus the JobSpecs that have not executed yet. Checkpoints are append-only;
// stores keep a bounded number per execution and prune older ones.
type Checkpoint struct {
	ID          string             `json:"id"`
	ExecutionID string             `json:"execution_id"`
	Name        string             `json:"name,omitempty"`
	TriggeredBy CheckpointTrigger  `json:"triggered_by"`
	Runs        map[string]*JobRun `json:"runs"`
	Remaining   []JobSpec          `json:"remaining"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ViolationKind identifies which limit a resource sample exceeded.
type ViolationKind string

const (
	ViolationMemory ViolationKind = "memory"
	ViolationCPU    ViolationKind = "cpu"
	ViolationTime   ViolationKind = "time"
)

// ViolationSeverity scales with how far over the limit a sample landed.
type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "low"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

// ResourceViolation is produced by the resource monitor and consumed by the
// execution engine to decide cancellation.
type ResourceViolation struct {
	JobID     string            `json:"job_id"`
	Kind      ViolationKind     `json:"kind"`
	Severity  ViolationSeverity `json:"severity"`
	Observed  float64           `json:"observed"`
	Limit     float64           `json:"limit"`
	Timestamp time.Time         `json:"timestamp"`
}

// AuditAction identifies a lifecycle transition recorded in the audit trail.
type AuditAction string

const (
	AuditExecutionStarted   AuditAction = "execution_started"
	AuditExecutionCompleted AuditAction = "execution_completed"
	AuditExecutionFailed    AuditAction = "execution_failed"
	AuditExecutionCancelled AuditAction = "execution_cancelled"
	AuditExecutionPaused    AuditAction = "execution_paused"
	AuditExecutionResumed   AuditAction = "execution_resumed"
	AuditJobStarted         AuditAction = "job_started"
	AuditJobCompleted       AuditAction = "job_completed"
	AuditJobFailed          AuditAction = "job_failed"
	AuditJobTimeout         AuditAction = "job_timeout"
	AuditJobSkipped         AuditAction = "job_skipped"
	AuditJobCancelled       AuditAction = "job_cancelled"
	AuditJobCacheHit        AuditAction = "job_cache_hit"
	AuditResourceViolation  AuditAction = "resource_violation"
	AuditCheckpointCreated  AuditAction = "checkpoint_created"
	AuditCheckpointResumed  AuditAction = "checkpoint_resumed"
)

// AuditEntry is an immutable record of a single lifecycle transition.
type AuditEntry struct {
	ID          string      `json:"id"`
	ExecutionID string      `json:"execution_id"`
	JobID       string      `json:"job_id,omitempty"`
	Action      AuditAction `json:"action"`
	Detail      string      `json:"detail,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
