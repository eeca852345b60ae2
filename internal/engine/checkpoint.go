package engine

import (
	"context"
	"fmt"

	"github.com/forgeml/orchestrator/internal/metrics"
	"github.com/forgeml/orchestrator/pkg/types"
)

// checkpoint snapshots the execution: every terminal run plus the specs that
// have not reached a terminal state. The snapshot is persisted to the store
// and, when an archiver is configured, to durable storage. Persistence
// failures are returned so callers that need the checkpoint (pause) can
// surface them; periodic callers treat them as best-effort.
func (e *Engine) checkpoint(ctx context.Context, rc *execContext, trigger types.CheckpointTrigger) (*types.Checkpoint, error) {
	rc.mu.Lock()
	runs := make(map[string]*types.JobRun)
	for id, run := range rc.runs {
		if run.Status.Terminal() {
			copied := *run
			runs[id] = &copied
		}
	}
	var remaining []types.JobSpec
	for i := range rc.specs {
		if run, ok := rc.runs[rc.specs[i].ID]; ok && !run.Status.Terminal() {
			remaining = append(remaining, rc.specs[i])
		}
	}
	rc.mu.Unlock()

	cp := &types.Checkpoint{
		ExecutionID: rc.id,
		TriggeredBy: trigger,
		Runs:        runs,
		Remaining:   remaining,
	}

	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		cpErr := &types.CheckpointError{Op: "save", Err: err}
		e.logger.Error("checkpoint failed",
			"execution_id", rc.id,
			"trigger", string(trigger),
			"error", cpErr,
		)
		return nil, cpErr
	}

	metrics.CheckpointsTotal.WithLabelValues(string(trigger)).Inc()
	e.audit(ctx, rc.id, "", types.AuditCheckpointCreated, fmt.Sprintf("%s (%s)", cp.ID, trigger))
	e.emit(ctx, rc.id, types.EventTypeCheckpoint, "", map[string]interface{}{
		"checkpoint_id": cp.ID,
		"trigger":       string(trigger),
		"terminal_jobs": len(runs),
		"remaining":     len(remaining),
	})

	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, cp); err != nil {
			e.logger.Warn("checkpoint archive failed", "checkpoint_id", cp.ID, "error", err)
		}
	}

	return cp, nil
}
