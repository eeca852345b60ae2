package engine

import (
	"fmt"

	"github.com/forgeml/orchestrator/pkg/types"
)

func (rc *execContext) isCancelled() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cancelled
}

func (rc *execContext) markCancelRequested() {
	rc.mu.Lock()
	rc.cancelled = true
	rc.mu.Unlock()
}

func (rc *execContext) pendingCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	n := 0
	for _, run := range rc.runs {
		if run.Status == types.JobStatusPending {
			n++
		}
	}
	return n
}

func (rc *execContext) levelHasCritical(level []string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	critical := make(map[string]bool)
	for i := range rc.specs {
		if rc.specs[i].Critical {
			critical[rc.specs[i].ID] = true
		}
	}
	for _, id := range level {
		if critical[id] {
			return true
		}
	}
	return false
}

// specFor returns a copy of the spec with the given id, nil when unknown.
func (rc *execContext) specFor(id string) *types.JobSpec {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := range rc.specs {
		if rc.specs[i].ID == id {
			copied := rc.specs[i]
			return &copied
		}
	}
	return nil
}

func (rc *execContext) snapshotSpecs() []types.JobSpec {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]types.JobSpec, len(rc.specs))
	copy(out, rc.specs)
	return out
}

// depOutputs collects the outputs of a job's terminal dependencies, keyed by
// job id. Skipped dependencies contribute nothing.
func (rc *execContext) depOutputs(spec *types.JobSpec) map[string]map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]map[string]interface{}, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		if o, ok := rc.outputs[dep]; ok {
			out[dep] = o
		}
	}
	return out
}

func (rc *execContext) setAttempt(jobID string, attempt int) {
	rc.mu.Lock()
	if run, ok := rc.runs[jobID]; ok {
		run.Attempt = attempt
	}
	rc.mu.Unlock()
}

func (rc *execContext) appendLog(jobID, line string) {
	rc.mu.Lock()
	if run, ok := rc.runs[jobID]; ok {
		run.Logs = append(run.Logs, line)
	}
	rc.mu.Unlock()
}

// generatedIDs returns the ids a fan-out produced, in generation order, read
// from the fan-out run's output.
func (rc *execContext) generatedIDs(fanOutID string) ([]string, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out, ok := rc.outputs[fanOutID]
	if !ok {
		return nil, fmt.Errorf("fan-in source %s has no output", fanOutID)
	}

	switch v := out["generated"].(type) {
	case []string:
		return v, nil
	case []interface{}:
		// Restored from a checkpoint or store round-trip.
		ids := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("fan-in source %s has malformed output", fanOutID)
			}
			ids = append(ids, s)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("fan-in source %s is not a fan-out", fanOutID)
	}
}
