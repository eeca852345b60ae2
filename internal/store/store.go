// Package store provides execution state persistence, checkpoints, the audit
// trail, and event streaming.
package store

import (
	"context"
	"errors"

	"github.com/forgeml/orchestrator/pkg/types"
)

// Common errors returned by Store implementations.
var (
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// Store defines the interface for execution state persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Execution lifecycle
	CreateExecution(ctx context.Context, name string, specs []types.JobSpec) (string, error)
	GetExecution(ctx context.Context, execID string) (*types.Execution, error)
	ListExecutions(ctx context.Context) ([]*types.ExecutionMeta, error)
	UpdateExecutionStatus(ctx context.Context, execID string, status types.ExecutionStatus, errMsg string) error

	// ReplaceSpecs swaps the execution's job specs after a fan-out expands
	// the graph.
	ReplaceSpecs(ctx context.Context, execID string, specs []types.JobSpec) error

	// Job run tracking
	UpdateJobRun(ctx context.Context, execID string, run *types.JobRun) error
	GetJobRun(ctx context.Context, execID, jobID string) (*types.JobRun, error)

	// Checkpoints. SaveCheckpoint prunes beyond the retention limit;
	// GetCheckpoint with an empty id returns the latest checkpoint.
	SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error
	GetCheckpoint(ctx context.Context, execID, checkpointID string) (*types.Checkpoint, error)
	ListCheckpoints(ctx context.Context, execID string) ([]*types.Checkpoint, error)

	// Audit trail, append-only and returned in insertion order.
	AppendAudit(ctx context.Context, entry *types.AuditEntry) error
	ListAudit(ctx context.Context, execID string) ([]*types.AuditEntry, error)

	// Event streaming
	// AppendEvent adds an event to the execution's stream and returns it.
	AppendEvent(ctx context.Context, execID string, input *types.EventInput) (*types.Event, error)

	// GetEventsSince returns events after the given event ID (exclusive).
	// An empty lastEventID returns the whole retained stream.
	GetEventsSince(ctx context.Context, execID, lastEventID string) ([]*types.Event, error)

	// Subscribe returns a channel receiving new events for the execution.
	// The cleanup function must be called when done.
	Subscribe(ctx context.Context, execID string) (<-chan *types.Event, func(), error)

	// Diagnostics
	AdapterInfo(ctx context.Context) (map[string]interface{}, error)

	// Cleanup
	Close() error
}

// Config holds configuration for Store implementations.
type Config struct {
	// Maximum number of events to keep per execution (ring buffer)
	EventMaxLen int64

	// Maximum checkpoints retained per execution; older ones are pruned.
	CheckpointRetention int

	// TTL for executions in seconds (0 = no expiry)
	TTLSeconds int64
}

// DefaultConfig returns sensible defaults for Store configuration.
func DefaultConfig() *Config {
	return &Config{
		EventMaxLen:         5000,
		CheckpointRetention: 10,
		TTLSeconds:          7 * 24 * 60 * 60, // 7 days
	}
}
