package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgeml/orchestrator/pkg/types"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(&Config{EventMaxLen: 10, CheckpointRetention: 3})
}

func TestMemoryStore_ExecutionLifecycle(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	specs := []types.JobSpec{
		{ID: "prep", Type: "etl"},
		{ID: "train", Type: "train", DependsOn: []string{"prep"}},
	}
	execID, err := s.CreateExecution(ctx, "pipeline", specs)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exec, err := s.GetExecution(ctx, execID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if exec.Status != types.ExecutionStatusRunning {
		t.Errorf("new execution status = %s", exec.Status)
	}
	if len(exec.Jobs) != 2 || exec.Jobs["prep"].Status != types.JobStatusPending {
		t.Errorf("job runs not initialized: %+v", exec.Jobs)
	}
	if exec.StartedAt == nil {
		t.Error("new execution should have a start time")
	}

	if err := s.UpdateExecutionStatus(ctx, execID, types.ExecutionStatusCompleted, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	exec, _ = s.GetExecution(ctx, execID)
	if exec.CompletedAt == nil {
		t.Error("terminal status should set completion time")
	}

	if _, err := s.GetExecution(ctx, "missing"); !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("expected ErrExecutionNotFound, got %v", err)
	}
}

func TestMemoryStore_JobRunUpdates(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	execID, _ := s.CreateExecution(ctx, "", []types.JobSpec{{ID: "a", Type: "t"}})

	now := time.Now().UTC()
	run := &types.JobRun{
		JobID:     "a",
		Status:    types.JobStatusCompleted,
		Attempt:   2,
		Output:    map[string]interface{}{"accuracy": 0.9},
		StartedAt: &now,
	}
	if err := s.UpdateJobRun(ctx, execID, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	// The stored run must be isolated from the caller's copy.
	run.Attempt = 99
	got, err := s.GetJobRun(ctx, execID, "a")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Attempt != 2 {
		t.Errorf("stored run aliased caller state: attempt = %d", got.Attempt)
	}
	if got.Output["accuracy"] != 0.9 {
		t.Errorf("output lost: %v", got.Output)
	}
}

func TestMemoryStore_ReplaceSpecsAddsRuns(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	execID, _ := s.CreateExecution(ctx, "", []types.JobSpec{{ID: "sweep", Type: "fan-out"}})

	expanded := []types.JobSpec{
		{ID: "sweep", Type: "fan-out"},
		{ID: "sweep-1", Type: "train", DependsOn: []string{"sweep"}},
		{ID: "sweep-2", Type: "train", DependsOn: []string{"sweep"}},
	}
	if err := s.ReplaceSpecs(ctx, execID, expanded); err != nil {
		t.Fatalf("replace specs: %v", err)
	}

	exec, _ := s.GetExecution(ctx, execID)
	if len(exec.Specs) != 3 {
		t.Errorf("specs not replaced: %d", len(exec.Specs))
	}
	if exec.Jobs["sweep-1"] == nil || exec.Jobs["sweep-1"].Status != types.JobStatusPending {
		t.Errorf("generated jobs should get pending runs: %+v", exec.Jobs)
	}
}

func TestMemoryStore_CheckpointRetention(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	execID, _ := s.CreateExecution(ctx, "", []types.JobSpec{{ID: "a", Type: "t"}})

	for i := 0; i < 5; i++ {
		cp := &types.Checkpoint{
			ExecutionID: execID,
			TriggeredBy: types.CheckpointInterval,
			Runs:        map[string]*types.JobRun{},
		}
		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("save checkpoint %d: %v", i, err)
		}
	}

	cps, err := s.ListCheckpoints(ctx, execID)
	if err != nil {
		t.Fatalf("list checkpoints: %v", err)
	}
	if len(cps) != 3 {
		t.Errorf("retention not applied: %d checkpoints", len(cps))
	}

	latest, err := s.GetCheckpoint(ctx, execID, "")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.ID != cps[len(cps)-1].ID {
		t.Errorf("empty id should return the latest checkpoint")
	}

	if _, err := s.GetCheckpoint(ctx, execID, "nope"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestMemoryStore_AuditOrder(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	execID, _ := s.CreateExecution(ctx, "", []types.JobSpec{{ID: "a", Type: "t"}})

	actions := []types.AuditAction{
		types.AuditExecutionStarted,
		types.AuditJobStarted,
		types.AuditJobCompleted,
		types.AuditExecutionCompleted,
	}
	for _, a := range actions {
		if err := s.AppendAudit(ctx, &types.AuditEntry{ExecutionID: execID, Action: a}); err != nil {
			t.Fatalf("append audit: %v", err)
		}
	}

	entries, err := s.ListAudit(ctx, execID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != len(actions) {
		t.Fatalf("got %d entries, want %d", len(entries), len(actions))
	}
	for i, e := range entries {
		if e.Action != actions[i] {
			t.Errorf("entry %d: action %s, want %s", i, e.Action, actions[i])
		}
	}
}

func TestMemoryStore_EventRingBuffer(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	execID, _ := s.CreateExecution(ctx, "", []types.JobSpec{{ID: "a", Type: "t"}})

	for i := 0; i < 15; i++ {
		if _, err := s.AppendEvent(ctx, execID, &types.EventInput{Type: types.EventTypeLog, JobID: "a"}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	events, err := s.GetEventsSince(ctx, execID, "")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("ring buffer should cap at 10, got %d", len(events))
	}
	// Oldest events were dropped; the first retained should be id "6".
	if events[0].ID != "6" {
		t.Errorf("first retained event id = %s", events[0].ID)
	}

	since, _ := s.GetEventsSince(ctx, execID, "13")
	if len(since) != 2 {
		t.Errorf("events since 13 = %d, want 2", len(since))
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	execID, _ := s.CreateExecution(ctx, "", []types.JobSpec{{ID: "a", Type: "t"}})

	ch, cleanup, err := s.Subscribe(ctx, execID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cleanup()

	s.AppendEvent(ctx, execID, &types.EventInput{Type: types.EventTypeJobStatus, JobID: "a"})

	select {
	case evt := <-ch:
		if evt.Type != types.EventTypeJobStatus {
			t.Errorf("wrong event type: %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered to subscriber")
	}
}
