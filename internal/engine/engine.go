// Package engine executes job pipelines: topological scheduling with bounded
// parallelism, conditional branching, fan-out expansion, retries, caching,
// resource enforcement, and checkpointed pause/resume.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgeml/orchestrator/internal/cache"
	"github.com/forgeml/orchestrator/internal/graph"
	"github.com/forgeml/orchestrator/internal/handler"
	"github.com/forgeml/orchestrator/internal/metrics"
	"github.com/forgeml/orchestrator/internal/monitor"
	"github.com/forgeml/orchestrator/internal/notify"
	"github.com/forgeml/orchestrator/internal/store"
	"github.com/forgeml/orchestrator/pkg/types"
)

// Archiver persists checkpoints to durable storage beyond the Store's
// retention window. Optional; a nil archiver disables archival.
type Archiver interface {
	Archive(ctx context.Context, cp *types.Checkpoint) error
}

// Options configures execution behavior.
type Options struct {
	// Parallelism caps concurrently running handler jobs across one
	// execution (default: 4).
	Parallelism int

	// CancelOnCriticalViolation fails the whole execution when any job
	// raises a critical resource violation. Off by default: only the
	// violating job fails.
	CancelOnCriticalViolation bool

	// CheckpointInterval creates interval checkpoints while an execution
	// runs (0 = disabled).
	CheckpointInterval time.Duration

	// CheckpointEachLevel creates a checkpoint after every completed level.
	CheckpointEachLevel bool

	// CheckpointEachJob creates a checkpoint after every completed handler
	// job. Expensive; intended for long-running pipelines with costly jobs.
	CheckpointEachJob bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{Parallelism: 4}
}

// Engine orchestrates pipeline executions.
type Engine struct {
	store     store.Store
	cache     cache.Cache
	handlers  *handler.Registry
	monitor   *monitor.Monitor
	archiver  Archiver
	notifier  notify.Notifier
	evaluator *ExprEvaluator
	logger    *slog.Logger
	tracer    trace.Tracer
	opts      Options

	mu    sync.Mutex
	execs map[string]*execContext

	reducersMu sync.RWMutex
	reducers   map[string]types.ReducerFunc

	// Critical-violation routing: jobID -> channel of the running task.
	violMu     sync.Mutex
	violRoutes map[string]chan types.ResourceViolation

	closeOnce sync.Once
	closed    chan struct{}
}

// execContext holds the runtime state for one in-flight execution.
type execContext struct {
	id     string
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu              sync.Mutex
	specs           []types.JobSpec
	runs            map[string]*types.JobRun
	outputs         map[string]map[string]interface{}
	pauseRequested  bool
	pauseCheckpoint bool
	cancelled       bool
	failure         error
}

// New creates an engine. cache, mon and archiver may be nil to disable the
// corresponding feature.
func New(st store.Store, c cache.Cache, handlers *handler.Registry, mon *monitor.Monitor, archiver Archiver, opts *Options, logger *slog.Logger) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:      st,
		cache:      c,
		handlers:   handlers,
		monitor:    mon,
		archiver:   archiver,
		evaluator:  NewExprEvaluator(),
		logger:     logger,
		tracer:     otel.Tracer("orchestrator/engine"),
		opts:       *opts,
		execs:      make(map[string]*execContext),
		reducers:   make(map[string]types.ReducerFunc),
		violRoutes: make(map[string]chan types.ResourceViolation),
		closed:     make(chan struct{}),
	}

	if mon != nil {
		go e.routeViolations()
	}
	return e
}

// SetNotifier installs a notifier invoked when executions reach a terminal
// state. Must be called before the first execution starts.
func (e *Engine) SetNotifier(n notify.Notifier) {
	e.notifier = n
}

// RegisterReducer binds a named custom fan-in reducer. Fan-in specs reference
// it by name so reducers survive checkpoint serialization.
func (e *Engine) RegisterReducer(name string, fn types.ReducerFunc) {
	e.reducersMu.Lock()
	e.reducers[name] = fn
	e.reducersMu.Unlock()
}

func (e *Engine) reducer(name string) (types.ReducerFunc, bool) {
	e.reducersMu.RLock()
	fn, ok := e.reducers[name]
	e.reducersMu.RUnlock()
	return fn, ok
}

// Execute validates and runs a pipeline synchronously, returning the final
// execution state.
func (e *Engine) Execute(ctx context.Context, name string, specs []types.JobSpec) (*types.Execution, error) {
	execID, err := e.Start(ctx, name, specs)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	rc := e.execs[execID]
	e.mu.Unlock()

	// The execution may already have finished and deregistered itself.
	if rc != nil {
		select {
		case <-rc.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.store.GetExecution(ctx, execID)
}

// Start validates a pipeline and begins executing it in the background,
// returning the execution id immediately.
func (e *Engine) Start(ctx context.Context, name string, specs []types.JobSpec) (string, error) {
	if len(specs) == 0 {
		return "", &types.ValidationError{Reason: "empty pipeline"}
	}
	if err := validateSpecs(specs); err != nil {
		return "", err
	}
	if _, err := graph.Levels(specs); err != nil {
		return "", err
	}
	if e.handlers != nil {
		for i := range specs {
			if specs[i].IsControlFlow() {
				continue
			}
			if _, err := e.handlers.Resolve(specs[i].Type); err != nil {
				return "", &types.ValidationError{Reason: err.Error(), IDs: []string{specs[i].ID}}
			}
		}
	}

	execID, err := e.store.CreateExecution(ctx, name, specs)
	if err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	rc := e.newExecContext(execID, specs, nil)
	go e.runExecution(rc, false)
	return execID, nil
}

func (e *Engine) newExecContext(execID string, specs []types.JobSpec, priorRuns map[string]*types.JobRun) *execContext {
	runCtx, cancel := context.WithCancel(context.Background())

	rc := &execContext{
		id:      execID,
		done:    make(chan struct{}),
		specs:   append([]types.JobSpec(nil), specs...),
		runs:    make(map[string]*types.JobRun, len(specs)),
		outputs: make(map[string]map[string]interface{}),
	}
	rc.cancel = cancel
	rc.runCtx = runCtx

	for i := range specs {
		id := specs[i].ID
		if prior, ok := priorRuns[id]; ok && prior.Status.Terminal() {
			copied := *prior
			rc.runs[id] = &copied
			if prior.Status == types.JobStatusCompleted && prior.Output != nil {
				rc.outputs[id] = prior.Output
			}
			continue
		}
		rc.runs[id] = &types.JobRun{JobID: id, Status: types.JobStatusPending}
	}

	e.mu.Lock()
	e.execs[execID] = rc
	e.mu.Unlock()
	return rc
}

// Pause requests a graceful pause: the current level drains, a checkpoint is
// taken when requested, and the execution lands in the paused state.
func (e *Engine) Pause(execID string, checkpoint bool) error {
	e.mu.Lock()
	rc, ok := e.execs[execID]
	e.mu.Unlock()
	if !ok {
		return store.ErrExecutionNotFound
	}

	rc.mu.Lock()
	rc.pauseRequested = true
	rc.pauseCheckpoint = checkpoint
	rc.mu.Unlock()
	return nil
}

// Resume restarts a paused execution from a checkpoint. An empty checkpointID
// resumes from the latest. Completed jobs are not re-invoked; their outputs
// are restored and treated as satisfied dependencies.
func (e *Engine) Resume(ctx context.Context, execID, checkpointID string) error {
	cp, err := e.store.GetCheckpoint(ctx, execID, checkpointID)
	if err != nil {
		// The store prunes old checkpoints; the archive may still have it.
		fetcher, ok := e.archiver.(interface {
			Fetch(ctx context.Context, execID, checkpointID string) (*types.Checkpoint, error)
		})
		if !ok || checkpointID == "" {
			return err
		}
		cp, err = fetcher.Fetch(ctx, execID, checkpointID)
		if err != nil {
			return err
		}
	}

	e.mu.Lock()
	if rc, ok := e.execs[execID]; ok {
		select {
		case <-rc.done:
		default:
			e.mu.Unlock()
			return fmt.Errorf("execution %s is still running", execID)
		}
	}
	e.mu.Unlock()

	// Re-validate the remaining graph with checkpointed jobs satisfied.
	done := make(map[string]bool, len(cp.Runs))
	for id, run := range cp.Runs {
		if run.Status.Terminal() {
			done[id] = true
		}
	}
	if _, err := graph.LevelsResumed(cp.Remaining, done); err != nil {
		return err
	}

	if err := e.store.UpdateExecutionStatus(ctx, execID, types.ExecutionStatusRunning, ""); err != nil {
		return err
	}
	e.audit(ctx, execID, "", types.AuditCheckpointResumed, fmt.Sprintf("checkpoint %s", cp.ID))
	e.audit(ctx, execID, "", types.AuditExecutionResumed, "")
	e.emit(ctx, execID, types.EventTypeExecutionStatus, "", map[string]interface{}{
		"status":     string(types.ExecutionStatusRunning),
		"resumed":    true,
		"checkpoint": cp.ID,
	})

	// Seed the context with checkpointed terminal runs plus pending specs.
	all := append([]types.JobSpec(nil), cp.Remaining...)
	rc := e.newExecContext(execID, all, cp.Runs)
	for id, run := range cp.Runs {
		if run.Status.Terminal() {
			copied := *run
			rc.runs[id] = &copied
			if run.Status == types.JobStatusCompleted && run.Output != nil {
				rc.outputs[id] = run.Output
			}
		}
	}

	go e.runExecution(rc, true)
	return nil
}

// Cancel stops a running execution. In-flight jobs are cancelled via their
// contexts; pending jobs never start.
func (e *Engine) Cancel(ctx context.Context, execID string) error {
	e.mu.Lock()
	rc, ok := e.execs[execID]
	e.mu.Unlock()
	if !ok {
		return store.ErrExecutionNotFound
	}

	rc.mu.Lock()
	rc.cancelled = true
	rc.mu.Unlock()
	rc.cancel()
	return nil
}

// GetStatus returns the current execution state.
func (e *Engine) GetStatus(ctx context.Context, execID string) (*types.Execution, error) {
	return e.store.GetExecution(ctx, execID)
}

// routeViolations consumes the monitor's violation stream, records each one,
// and forwards critical violations to the violating job's task.
func (e *Engine) routeViolations() {
	for {
		select {
		case <-e.closed:
			return
		case v, ok := <-e.monitor.Violations():
			if !ok {
				return
			}
			metrics.ResourceViolationsTotal.WithLabelValues(string(v.Kind), string(v.Severity)).Inc()

			ctx := context.Background()
			execID := e.execForJob(v.JobID)
			if execID != "" {
				e.audit(ctx, execID, v.JobID, types.AuditResourceViolation,
					fmt.Sprintf("%s %s: observed %.1f, limit %.1f", v.Severity, v.Kind, v.Observed, v.Limit))
				e.emit(ctx, execID, types.EventTypeViolation, v.JobID, v)
			}

			if v.Severity != types.SeverityCritical {
				continue
			}
			if e.notifier != nil && execID != "" {
				violation := v
				if err := e.notifier.Notify(ctx, &notify.Notification{
					ExecutionID: execID,
					Violation:   &violation,
					Timestamp:   v.Timestamp,
				}); err != nil {
					e.logger.Warn("violation notification failed", "job_id", v.JobID, "error", err)
				}
			}
			e.violMu.Lock()
			ch := e.violRoutes[v.JobID]
			e.violMu.Unlock()
			if ch != nil {
				select {
				case ch <- v:
				default:
				}
			}
		}
	}
}

func (e *Engine) execForJob(jobID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, rc := range e.execs {
		rc.mu.Lock()
		_, ok := rc.runs[jobID]
		rc.mu.Unlock()
		if ok {
			return id
		}
	}
	return ""
}

func (e *Engine) registerViolationRoute(jobID string) chan types.ResourceViolation {
	ch := make(chan types.ResourceViolation, 1)
	e.violMu.Lock()
	e.violRoutes[jobID] = ch
	e.violMu.Unlock()
	return ch
}

func (e *Engine) unregisterViolationRoute(jobID string) {
	e.violMu.Lock()
	delete(e.violRoutes, jobID)
	e.violMu.Unlock()
}

func (e *Engine) audit(ctx context.Context, execID, jobID string, action types.AuditAction, detail string) {
	entry := &types.AuditEntry{
		ExecutionID: execID,
		JobID:       jobID,
		Action:      action,
		Detail:      detail,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		e.logger.Warn("append audit failed", "execution_id", execID, "action", string(action), "error", err)
	}
}

func (e *Engine) emit(ctx context.Context, execID string, eventType types.EventType, jobID string, data interface{}) {
	metrics.EventsTotal.WithLabelValues(string(eventType)).Inc()
	input := &types.EventInput{Type: eventType, JobID: jobID, Data: data}
	if _, err := e.store.AppendEvent(ctx, execID, input); err != nil {
		e.logger.Warn("emit event failed", "execution_id", execID, "type", string(eventType), "error", err)
	}
}

// validateSpecs runs per-spec structural checks beyond graph shape.
func validateSpecs(specs []types.JobSpec) error {
	for i := range specs {
		s := &specs[i]
		if s.FanOut != nil && s.FanIn != nil {
			return &types.ValidationError{Reason: "job is both fan-out and fan-in", IDs: []string{s.ID}}
		}
		if !s.IsControlFlow() && s.Type == "" {
			return &types.ValidationError{Reason: "job has no type", IDs: []string{s.ID}}
		}
		if s.FanOut != nil && len(s.FanOut.Parameters) == 0 {
			return &types.ValidationError{Reason: "fan-out has no parameters", IDs: []string{s.ID}}
		}
		if s.FanIn != nil && s.FanIn.Source == "" {
			return &types.ValidationError{Reason: "fan-in has no source", IDs: []string{s.ID}}
		}
		if s.Retry != nil && s.Retry.MaxRetries < 0 {
			return &types.ValidationError{Reason: "negative retry count", IDs: []string{s.ID}}
		}
	}
	return nil
}

// Close stops the violation router. Running executions are not interrupted.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.closed) })
}
