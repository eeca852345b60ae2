package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeml/orchestrator/pkg/types"
)

// memoryExecution holds all state for a single execution in memory.
type memoryExecution struct {
	mu          sync.RWMutex
	id          string
	name        string
	status      types.ExecutionStatus
	specs       []types.JobSpec
	runs        map[string]*types.JobRun
	checkpoints []*types.Checkpoint
	audit       []*types.AuditEntry
	events      []*types.Event
	nextSeq     int64
	maxEvents   int64
	errMsg      string
	startedAt   *time.Time
	completedAt *time.Time
	subscribers map[chan *types.Event]struct{}
	createdAt   time.Time
	updatedAt   time.Time
}

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	execs  map[string]*memoryExecution
	config *Config
}

// NewMemoryStore creates a new in-memory Store.
func NewMemoryStore(cfg *Config) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryStore{
		execs:  make(map[string]*memoryExecution),
		config: cfg,
	}
}

func generateID() string {
	return uuid.NewString()
}

func (s *MemoryStore) CreateExecution(ctx context.Context, name string, specs []types.JobSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	execID := generateID()
	now := time.Now().UTC()

	runs := make(map[string]*types.JobRun, len(specs))
	for _, spec := range specs {
		runs[spec.ID] = &types.JobRun{
			JobID:  spec.ID,
			Status: types.JobStatusPending,
		}
	}

	s.execs[execID] = &memoryExecution{
		id:          execID,
		name:        name,
		status:      types.ExecutionStatusRunning,
		specs:       specs,
		runs:        runs,
		maxEvents:   s.config.EventMaxLen,
		nextSeq:     1,
		subscribers: make(map[chan *types.Event]struct{}),
		startedAt:   &now,
		createdAt:   now,
		updatedAt:   now,
	}

	return execID, nil
}

func (s *MemoryStore) get(execID string) (*memoryExecution, error) {
	s.mu.RLock()
	exec, ok := s.execs[execID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return exec, nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, execID string) (*types.Execution, error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, err
	}

	exec.mu.RLock()
	defer exec.mu.RUnlock()

	jobs := make(map[string]*types.JobRun, len(exec.runs))
	for id, run := range exec.runs {
		copied := *run
		jobs[id] = &copied
	}
	specs := make([]types.JobSpec, len(exec.specs))
	copy(specs, exec.specs)

	return &types.Execution{
		ID:          exec.id,
		Name:        exec.name,
		Status:      exec.status,
		Jobs:        jobs,
		Specs:       specs,
		Error:       exec.errMsg,
		StartedAt:   exec.startedAt,
		CompletedAt: exec.completedAt,
		CreatedAt:   exec.createdAt,
		UpdatedAt:   exec.updatedAt,
	}, nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context) ([]*types.ExecutionMeta, error) {
	s.mu.RLock()
	execs := make([]*memoryExecution, 0, len(s.execs))
	for _, exec := range s.execs {
		execs = append(execs, exec)
	}
	s.mu.RUnlock()

	metas := make([]*types.ExecutionMeta, 0, len(execs))
	for _, exec := range execs {
		exec.mu.RLock()
		metas = append(metas, &types.ExecutionMeta{
			ID:          exec.id,
			Name:        exec.name,
			Status:      exec.status,
			Error:       exec.errMsg,
			StartedAt:   exec.startedAt,
			CompletedAt: exec.completedAt,
			CreatedAt:   exec.createdAt,
			UpdatedAt:   exec.updatedAt,
		})
		exec.mu.RUnlock()
	}

	sort.Slice(metas, func(a, b int) bool {
		return metas[a].CreatedAt.Before(metas[b].CreatedAt)
	})
	return metas, nil
}

func (s *MemoryStore) UpdateExecutionStatus(ctx context.Context, execID string, status types.ExecutionStatus, errMsg string) error {
	exec, err := s.get(execID)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	now := time.Now().UTC()
	exec.status = status
	exec.errMsg = errMsg
	exec.updatedAt = now
	if status == types.ExecutionStatusRunning && exec.startedAt == nil {
		exec.startedAt = &now
	}
	if status.Terminal() {
		exec.completedAt = &now
	}
	closeSubs := status.Terminal()
	var subs []chan *types.Event
	if closeSubs {
		for ch := range exec.subscribers {
			subs = append(subs, ch)
		}
		exec.subscribers = make(map[chan *types.Event]struct{})
	}
	exec.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
	return nil
}

func (s *MemoryStore) ReplaceSpecs(ctx context.Context, execID string, specs []types.JobSpec) error {
	exec, err := s.get(execID)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()

	exec.specs = make([]types.JobSpec, len(specs))
	copy(exec.specs, specs)
	for _, spec := range specs {
		if _, ok := exec.runs[spec.ID]; !ok {
			exec.runs[spec.ID] = &types.JobRun{
				JobID:  spec.ID,
				Status: types.JobStatusPending,
			}
		}
	}
	exec.updatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateJobRun(ctx context.Context, execID string, run *types.JobRun) error {
	exec, err := s.get(execID)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()

	copied := *run
	exec.runs[run.JobID] = &copied
	exec.updatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetJobRun(ctx context.Context, execID, jobID string) (*types.JobRun, error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, err
	}

	exec.mu.RLock()
	defer exec.mu.RUnlock()

	run, ok := exec.runs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found in execution %s", jobID, execID)
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	exec, err := s.get(cp.ExecutionID)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()

	if cp.ID == "" {
		cp.ID = generateID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	exec.checkpoints = append(exec.checkpoints, cp)

	// Prune beyond the retention limit, oldest first.
	if n := s.config.CheckpointRetention; n > 0 && len(exec.checkpoints) > n {
		exec.checkpoints = exec.checkpoints[len(exec.checkpoints)-n:]
	}
	exec.updatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetCheckpoint(ctx context.Context, execID, checkpointID string) (*types.Checkpoint, error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, err
	}

	exec.mu.RLock()
	defer exec.mu.RUnlock()

	if len(exec.checkpoints) == 0 {
		return nil, ErrCheckpointNotFound
	}
	if checkpointID == "" {
		return exec.checkpoints[len(exec.checkpoints)-1], nil
	}
	for _, cp := range exec.checkpoints {
		if cp.ID == checkpointID {
			return cp, nil
		}
	}
	return nil, ErrCheckpointNotFound
}

func (s *MemoryStore) ListCheckpoints(ctx context.Context, execID string) ([]*types.Checkpoint, error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, err
	}

	exec.mu.RLock()
	defer exec.mu.RUnlock()

	out := make([]*types.Checkpoint, len(exec.checkpoints))
	copy(out, exec.checkpoints)
	return out, nil
}

func (s *MemoryStore) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	exec, err := s.get(entry.ExecutionID)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()

	if entry.ID == "" {
		entry.ID = generateID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	exec.audit = append(exec.audit, entry)
	return nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, execID string) ([]*types.AuditEntry, error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, err
	}

	exec.mu.RLock()
	defer exec.mu.RUnlock()

	out := make([]*types.AuditEntry, len(exec.audit))
	copy(out, exec.audit)
	return out, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, execID string, input *types.EventInput) (*types.Event, error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, err
	}

	exec.mu.Lock()

	eventID := fmt.Sprintf("%d", exec.nextSeq)
	exec.nextSeq++

	dataJSON, err := json.Marshal(input.Data)
	if err != nil {
		exec.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := &types.Event{
		ID:          eventID,
		ExecutionID: execID,
		Type:        input.Type,
		JobID:       input.JobID,
		Timestamp:   time.Now().UTC(),
		Data:        dataJSON,
	}

	// Ring buffer: drop the oldest event when full.
	if int64(len(exec.events)) >= exec.maxEvents {
		exec.events = exec.events[1:]
	}
	exec.events = append(exec.events, event)
	exec.updatedAt = time.Now().UTC()

	subs := make([]chan *types.Event, 0, len(exec.subscribers))
	for ch := range exec.subscribers {
		subs = append(subs, ch)
	}
	exec.mu.Unlock()

	// Notify subscribers (non-blocking).
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Subscriber too slow, skip
		}
	}

	return event, nil
}

func (s *MemoryStore) GetEventsSince(ctx context.Context, execID, lastEventID string) ([]*types.Event, error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, err
	}

	exec.mu.RLock()
	defer exec.mu.RUnlock()

	if lastEventID == "" {
		result := make([]*types.Event, len(exec.events))
		copy(result, exec.events)
		return result, nil
	}

	var result []*types.Event
	found := false
	for _, evt := range exec.events {
		if found {
			result = append(result, evt)
		}
		if evt.ID == lastEventID {
			found = true
		}
	}
	return result, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, execID string) (<-chan *types.Event, func(), error) {
	exec, err := s.get(execID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan *types.Event, 100)

	exec.mu.Lock()
	exec.subscribers[ch] = struct{}{}
	exec.mu.Unlock()

	cleanup := func() {
		exec.mu.Lock()
		delete(exec.subscribers, ch)
		exec.mu.Unlock()
	}

	return ch, cleanup, nil
}

func (s *MemoryStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	count := len(s.execs)
	s.mu.RUnlock()

	return map[string]interface{}{
		"adapter":         "memory",
		"execution_count": count,
		"max_events":      s.config.EventMaxLen,
	}, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, exec := range s.execs {
		exec.mu.Lock()
		for ch := range exec.subscribers {
			close(ch)
		}
		exec.subscribers = nil
		exec.mu.Unlock()
	}
	return nil
}

// Verify interface compliance
var _ Store = (*MemoryStore)(nil)
