package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgeml/orchestrator/internal/cache"
	"github.com/forgeml/orchestrator/internal/expand"
	"github.com/forgeml/orchestrator/internal/graph"
	"github.com/forgeml/orchestrator/internal/handler"
	"github.com/forgeml/orchestrator/internal/metrics"
	"github.com/forgeml/orchestrator/internal/notify"
	"github.com/forgeml/orchestrator/pkg/types"
)

// runExecution drives one execution level by level until nothing is pending,
// the execution fails, or it is paused or cancelled.
func (e *Engine) runExecution(rc *execContext, resumed bool) {
	ctx, span := e.tracer.Start(rc.runCtx, "engine.execution",
		trace.WithAttributes(attribute.String("execution.id", rc.id)))
	defer span.End()

	defer close(rc.done)
	defer func() {
		e.mu.Lock()
		delete(e.execs, rc.id)
		e.mu.Unlock()
	}()

	started := time.Now()
	metrics.ExecutionsActive.Inc()
	defer metrics.ExecutionsActive.Dec()

	bg := context.Background()
	if !resumed {
		e.audit(bg, rc.id, "", types.AuditExecutionStarted, "")
		e.emit(bg, rc.id, types.EventTypeHello, "", map[string]interface{}{"execution_id": rc.id})
		e.emit(bg, rc.id, types.EventTypeExecutionStatus, "", map[string]interface{}{
			"status": string(types.ExecutionStatusRunning),
		})
	}

	var intervalC <-chan time.Time
	if e.opts.CheckpointInterval > 0 {
		ticker := time.NewTicker(e.opts.CheckpointInterval)
		defer ticker.Stop()
		intervalC = ticker.C
	}

	sem := make(chan struct{}, e.opts.Parallelism)

	paused := false
	var levelErr error

	for {
		if ctx.Err() != nil || rc.isCancelled() {
			break
		}

		// A pause request takes effect between levels so no job is
		// interrupted mid-flight.
		rc.mu.Lock()
		pauseReq, pauseCP := rc.pauseRequested, rc.pauseCheckpoint
		rc.mu.Unlock()
		if pauseReq {
			if pauseCP {
				// Losing the pause checkpoint is a correctness risk;
				// record it on the execution rather than pausing silently.
				if _, err := e.checkpoint(bg, rc, types.CheckpointManual); err != nil {
					levelErr = err
				}
			}
			paused = true
			break
		}

		select {
		case <-intervalC:
			e.checkpoint(bg, rc, types.CheckpointInterval)
		default:
		}

		level, err := e.nextLevel(rc)
		if err != nil {
			levelErr = err
			break
		}
		if len(level) == 0 {
			break
		}
		metrics.QueueDepth.Set(float64(rc.pendingCount()))

		if rc.levelHasCritical(level) {
			e.checkpoint(bg, rc, types.CheckpointBeforeCritical)
		}

		e.runLevel(ctx, rc, sem, level)

		if e.opts.CheckpointEachLevel {
			e.checkpoint(bg, rc, types.CheckpointLevelCompleted)
		}
	}

	e.finishExecution(bg, rc, paused, levelErr, started)
}

// nextLevel computes the first topological level over pending jobs, treating
// every terminal job as a satisfied dependency.
func (e *Engine) nextLevel(rc *execContext) ([]string, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	done := make(map[string]bool, len(rc.runs))
	for id, run := range rc.runs {
		if run.Status.Terminal() {
			done[id] = true
		}
	}

	var pending []types.JobSpec
	for i := range rc.specs {
		if run, ok := rc.runs[rc.specs[i].ID]; ok && run.Status == types.JobStatusPending {
			pending = append(pending, rc.specs[i])
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	levels, err := graph.LevelsResumed(pending, done)
	if err != nil {
		return nil, err
	}
	return levels[0], nil
}

// runLevel executes one level's jobs concurrently. Parallelism is still
// bounded by the shared semaphore acquired per handler invocation.
func (e *Engine) runLevel(ctx context.Context, rc *execContext, sem chan struct{}, level []string) {
	done := make(chan struct{}, len(level))
	for _, id := range level {
		spec := rc.specFor(id)
		if spec == nil {
			done <- struct{}{}
			continue
		}
		go func(spec types.JobSpec) {
			defer func() { done <- struct{}{} }()
			e.runJob(ctx, rc, sem, &spec)
		}(*spec)
	}
	for range level {
		<-done
	}
}

func (e *Engine) runJob(ctx context.Context, rc *execContext, sem chan struct{}, spec *types.JobSpec) {
	jobCtx, span := e.tracer.Start(ctx, "engine.job",
		trace.WithAttributes(
			attribute.String("job.id", spec.ID),
			attribute.String("job.type", spec.Type),
		))
	defer span.End()

	if jobCtx.Err() != nil {
		e.finishJob(rc, spec, types.JobStatusCancelled, nil, context.Canceled, time.Now().UTC())
		return
	}

	start := time.Now().UTC()

	// Conditions gate everything, including control flow jobs.
	if spec.Condition != nil {
		pass, err := e.evalCondition(jobCtx, rc, spec)
		e.emit(context.Background(), rc.id, types.EventTypeConditionEvaluated, spec.ID, map[string]interface{}{
			"result": pass,
			"error":  errString(err),
		})
		if err != nil {
			e.finishJob(rc, spec, types.JobStatusFailed, nil, fmt.Errorf("condition: %w", err), start)
			e.cascadeSkip(rc, spec.ID)
			return
		}
		if !pass {
			e.finishJob(rc, spec, types.JobStatusSkipped, nil, nil, start)
			return
		}
	}

	switch {
	case spec.FanOut != nil:
		e.runFanOut(rc, spec, start)
	case spec.FanIn != nil:
		e.runFanIn(rc, spec, start)
	default:
		e.runHandlerJob(jobCtx, rc, sem, spec, start)
	}
}

// evalCondition evaluates a job's condition against its dependency outputs.
// A caller-supplied predicate wins over an expression.
func (e *Engine) evalCondition(ctx context.Context, rc *execContext, spec *types.JobSpec) (bool, error) {
	depOutputs := rc.depOutputs(spec)

	if spec.Condition.Predicate != nil {
		return spec.Condition.Predicate(ctx, depOutputs)
	}
	if spec.Condition.Expression == "" {
		return true, nil
	}

	env := BuildEnvironment(depOutputs, map[string]interface{}{"execution_id": rc.id})
	return e.evaluator.EvaluateBool(spec.Condition.Expression, env)
}

func (e *Engine) runHandlerJob(ctx context.Context, rc *execContext, sem chan struct{}, spec *types.JobSpec, start time.Time) {
	h, err := e.handlers.Resolve(spec.Type)
	if err != nil {
		e.finishJob(rc, spec, types.JobStatusFailed, nil, err, start)
		e.cascadeSkip(rc, spec.ID)
		return
	}

	depOutputs := rc.depOutputs(spec)
	bg := context.Background()

	// Cache lookup happens before the semaphore: a hit never consumes a
	// parallelism slot or invokes the handler.
	var cacheKey string
	if e.cache != nil {
		cacheKey = cache.Key(spec.Type, spec.Config, depOutputs, e.handlers.Version(spec.Type))
		entry, hit, cerr := e.cache.Get(ctx, cacheKey)
		switch {
		case cerr != nil:
			// Degrade to a miss.
			metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
			e.logger.Warn("cache get failed", "job_id", spec.ID, "error", &types.CacheError{Op: "get", Err: cerr})
		case hit:
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			e.emit(bg, rc.id, types.EventTypeCacheHit, spec.ID, map[string]interface{}{"key": cacheKey})
			e.audit(bg, rc.id, spec.ID, types.AuditJobCacheHit, cacheKey)
			e.finishCached(rc, spec, entry.Output, start)
			return
		default:
			metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		}
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		e.finishJob(rc, spec, types.JobStatusCancelled, nil, ctx.Err(), start)
		return
	}

	e.markRunning(rc, spec, start)

	if e.monitor != nil && spec.Resources != nil {
		e.monitor.StartMonitoring(spec.ID, spec.Resources)
		defer e.monitor.StopMonitoring(spec.ID)
	}
	violCh := e.registerViolationRoute(spec.ID)
	defer e.unregisterViolationRoute(spec.ID)

	maxAttempts := spec.MaxRetries() + 1
	bo := retryBackoff(spec.Retry)

	var out map[string]interface{}
	var jobErr error
	attempt := 0
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		rc.setAttempt(spec.ID, attempt)
		out, jobErr = e.invokeHandler(ctx, rc, spec, h, depOutputs, attempt, violCh)
		if jobErr == nil {
			break
		}
		if errors.Is(jobErr, context.Canceled) {
			e.finishJob(rc, spec, types.JobStatusCancelled, nil, jobErr, start)
			return
		}
		if errors.Is(jobErr, types.ErrTimeout) {
			e.audit(bg, rc.id, spec.ID, types.AuditJobTimeout, fmt.Sprintf("attempt %d", attempt))
		}
		if !types.IsRetryable(jobErr) || attempt == maxAttempts {
			break
		}

		delay := bo.NextBackOff()
		e.logger.Info("retrying job",
			"execution_id", rc.id,
			"job_id", spec.ID,
			"attempt", attempt,
			"delay", delay,
			"error", jobErr,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			e.finishJob(rc, spec, types.JobStatusCancelled, nil, ctx.Err(), start)
			return
		}
	}
	if attempt > maxAttempts {
		attempt = maxAttempts
	}
	metrics.JobRetries.WithLabelValues(finalStatusLabel(jobErr)).Observe(float64(attempt - 1))

	if jobErr != nil {
		var verr *types.ViolationError
		if errors.As(jobErr, &verr) && e.opts.CancelOnCriticalViolation {
			rc.markCancelRequested()
			rc.cancel()
		}
		e.finishJob(rc, spec, types.JobStatusFailed, nil, jobErr, start)
		e.cascadeSkip(rc, spec.ID)
		return
	}

	if e.cache != nil && cacheKey != "" {
		if cerr := e.cache.Set(bg, cacheKey, out); cerr != nil {
			e.logger.Warn("cache set failed", "job_id", spec.ID, "error", &types.CacheError{Op: "set", Err: cerr})
		}
	}
	e.finishJob(rc, spec, types.JobStatusCompleted, out, nil, start)

	if e.opts.CheckpointEachJob {
		e.checkpoint(bg, rc, types.CheckpointJobCompleted)
	}
}

// invokeHandler runs one handler attempt under the job's timeout, racing it
// against critical resource violations.
func (e *Engine) invokeHandler(ctx context.Context, rc *execContext, spec *types.JobSpec, h handler.Handler, depOutputs map[string]map[string]interface{}, attempt int, violCh chan types.ResourceViolation) (map[string]interface{}, error) {
	var jobCtx context.Context
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	bg := context.Background()
	hctx := handler.NewContext(rc.id, attempt, depOutputs,
		func(line string) {
			rc.appendLog(spec.ID, line)
			e.emit(bg, rc.id, types.EventTypeLog, spec.ID, map[string]interface{}{"line": line})
		},
		func(fraction float64, message string) {
			e.emit(bg, rc.id, types.EventTypeProgress, spec.ID, &types.ProgressEvent{
				Percent: fraction * 100,
				Message: message,
			})
		},
	)

	type result struct {
		out map[string]interface{}
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		out, err := h.Handle(jobCtx, spec, hctx)
		resCh <- result{out, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) || jobCtx.Err() == context.DeadlineExceeded {
				return nil, types.ErrTimeout
			}
			if jobCtx.Err() == context.Canceled || errors.Is(r.err, context.Canceled) {
				return nil, context.Canceled
			}
			return nil, r.err
		}
		return r.out, nil

	case v := <-violCh:
		// Critical violation: cancel the handler and fail without retry.
		cancel()
		return nil, &types.ViolationError{Violation: v}

	case <-jobCtx.Done():
		if jobCtx.Err() == context.DeadlineExceeded {
			return nil, types.ErrTimeout
		}
		return nil, context.Canceled
	}
}

// runFanOut expands a fan-out job's template into concrete jobs, splices them
// into the graph, and rewires fan-ins that source this job.
func (e *Engine) runFanOut(rc *execContext, spec *types.JobSpec, start time.Time) {
	generated, err := expand.FanOut(spec)
	if err != nil {
		e.finishJob(rc, spec, types.JobStatusFailed, nil, err, start)
		e.cascadeSkip(rc, spec.ID)
		return
	}

	genIDs := make([]string, len(generated))
	for i := range generated {
		genIDs[i] = generated[i].ID
	}

	rc.mu.Lock()
	existing := make(map[string]bool, len(rc.specs))
	for i := range rc.specs {
		existing[rc.specs[i].ID] = true
	}
	for _, id := range genIDs {
		if existing[id] {
			rc.mu.Unlock()
			e.finishJob(rc, spec, types.JobStatusFailed, nil,
				&types.ValidationError{Reason: "fan-out generated a duplicate job id", IDs: []string{id}}, start)
			e.cascadeSkip(rc, spec.ID)
			return
		}
	}

	newSpecs := append(append([]types.JobSpec(nil), rc.specs...), generated...)
	// A fan-in that sources this fan-out inherits the generated jobs as its
	// dependencies in place of the fan-out itself.
	for i := range newSpecs {
		fi := newSpecs[i].FanIn
		if fi == nil || fi.Source != spec.ID {
			continue
		}
		var deps []string
		replaced := false
		for _, dep := range newSpecs[i].DependsOn {
			if dep == spec.ID {
				deps = append(deps, genIDs...)
				replaced = true
				continue
			}
			deps = append(deps, dep)
		}
		if !replaced {
			deps = append(deps, genIDs...)
		}
		newSpecs[i].DependsOn = deps
	}

	rc.specs = newSpecs
	for i := range generated {
		rc.runs[generated[i].ID] = &types.JobRun{JobID: generated[i].ID, Status: types.JobStatusPending}
	}
	rc.mu.Unlock()

	bg := context.Background()
	if err := e.store.ReplaceSpecs(bg, rc.id, rc.snapshotSpecs()); err != nil {
		e.logger.Warn("persist expanded specs failed", "execution_id", rc.id, "error", err)
	}

	metrics.FanOutJobsGenerated.Observe(float64(len(generated)))
	e.emit(bg, rc.id, types.EventTypeFanOutExpanded, spec.ID, map[string]interface{}{
		"generated": genIDs,
		"count":     len(genIDs),
	})

	out := map[string]interface{}{
		"generated": genIDs,
		"count":     len(genIDs),
	}
	e.finishJob(rc, spec, types.JobStatusCompleted, out, nil, start)
}

// runFanIn aggregates the outputs of a fan-out's generated jobs, in
// generation order, using the configured strategy.
func (e *Engine) runFanIn(rc *execContext, spec *types.JobSpec, start time.Time) {
	fi := *spec.FanIn

	genIDs, err := rc.generatedIDs(fi.Source)
	if err != nil {
		e.finishJob(rc, spec, types.JobStatusFailed, nil, err, start)
		e.cascadeSkip(rc, spec.ID)
		return
	}

	rc.mu.Lock()
	var outputs []map[string]interface{}
	for _, id := range genIDs {
		if out, ok := rc.outputs[id]; ok {
			outputs = append(outputs, out)
		}
	}
	rc.mu.Unlock()

	if fi.Aggregation == types.AggregateCustom && fi.Reducer == nil {
		fn, ok := e.reducer(fi.ReducerName)
		if !ok {
			e.finishJob(rc, spec, types.JobStatusFailed, nil,
				fmt.Errorf("unknown reducer %q", fi.ReducerName), start)
			e.cascadeSkip(rc, spec.ID)
			return
		}
		fi.Reducer = fn
	}

	result, err := expand.Aggregate(&fi, outputs)
	if err != nil {
		e.finishJob(rc, spec, types.JobStatusFailed, nil, err, start)
		e.cascadeSkip(rc, spec.ID)
		return
	}

	e.emit(context.Background(), rc.id, types.EventTypeFanInAggregated, spec.ID, map[string]interface{}{
		"strategy": string(fi.Aggregation),
		"inputs":   len(outputs),
	})
	e.finishJob(rc, spec, types.JobStatusCompleted, result, nil, start)
}

// cascadeSkip marks every pending transitive dependent of a failed job as
// skipped. Conditional skips deliberately do not cascade.
func (e *Engine) cascadeSkip(rc *execContext, failedID string) {
	rc.mu.Lock()
	dependents := graph.Dependents(rc.specs)
	specIndex := make(map[string]types.JobSpec, len(rc.specs))
	for i := range rc.specs {
		specIndex[rc.specs[i].ID] = rc.specs[i]
	}

	var toSkip []string
	queue := []string{failedID}
	seen := map[string]bool{failedID: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for dep := range dependents[id] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if run, ok := rc.runs[dep]; ok && run.Status == types.JobStatusPending {
				toSkip = append(toSkip, dep)
			}
			queue = append(queue, dep)
		}
	}
	rc.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range toSkip {
		spec, ok := specIndex[id]
		if !ok {
			continue
		}
		e.finishJob(rc, &spec, types.JobStatusSkipped,
			nil, fmt.Errorf("dependency %s failed", failedID), now)
	}
}

// markRunning transitions a job to running and records the start.
func (e *Engine) markRunning(rc *execContext, spec *types.JobSpec, start time.Time) {
	rc.mu.Lock()
	run := rc.runs[spec.ID]
	run.Status = types.JobStatusRunning
	run.StartedAt = &start
	copied := *run
	rc.mu.Unlock()

	bg := context.Background()
	if err := e.store.UpdateJobRun(bg, rc.id, &copied); err != nil {
		e.logger.Warn("update job run failed", "job_id", spec.ID, "error", err)
	}
	e.audit(bg, rc.id, spec.ID, types.AuditJobStarted, "")
	e.emit(bg, rc.id, types.EventTypeJobStatus, spec.ID, map[string]interface{}{
		"status": string(types.JobStatusRunning),
	})
}

// finishCached completes a job from a cache hit without invoking its handler.
func (e *Engine) finishCached(rc *execContext, spec *types.JobSpec, output map[string]interface{}, start time.Time) {
	now := time.Now().UTC()
	rc.mu.Lock()
	run := rc.runs[spec.ID]
	run.Status = types.JobStatusCompleted
	run.CacheHit = true
	run.Output = output
	run.StartedAt = &start
	run.FinishedAt = &now
	rc.outputs[spec.ID] = output
	copied := *run
	rc.mu.Unlock()

	bg := context.Background()
	if err := e.store.UpdateJobRun(bg, rc.id, &copied); err != nil {
		e.logger.Warn("update job run failed", "job_id", spec.ID, "error", err)
	}
	metrics.JobsTotal.WithLabelValues(string(types.JobStatusCompleted)).Inc()
	e.emit(bg, rc.id, types.EventTypeJobStatus, spec.ID, map[string]interface{}{
		"status":    string(types.JobStatusCompleted),
		"cache_hit": true,
	})
}

// finishJob records a job's terminal state in memory and in the store.
func (e *Engine) finishJob(rc *execContext, spec *types.JobSpec, status types.JobStatus, output map[string]interface{}, jobErr error, start time.Time) {
	now := time.Now().UTC()

	rc.mu.Lock()
	run := rc.runs[spec.ID]
	run.Status = status
	run.FinishedAt = &now
	if run.StartedAt == nil {
		run.StartedAt = &start
	}
	if output != nil {
		run.Output = output
		rc.outputs[spec.ID] = output
	}
	if jobErr != nil {
		run.Error = jobErr.Error()
	}
	copied := *run
	rc.mu.Unlock()

	bg := context.Background()
	if err := e.store.UpdateJobRun(bg, rc.id, &copied); err != nil {
		e.logger.Warn("update job run failed", "job_id", spec.ID, "error", err)
	}

	metrics.JobsTotal.WithLabelValues(string(status)).Inc()
	metrics.JobDuration.WithLabelValues(spec.Type, string(status)).Observe(now.Sub(start).Seconds())

	switch status {
	case types.JobStatusCompleted:
		e.audit(bg, rc.id, spec.ID, types.AuditJobCompleted, "")
	case types.JobStatusFailed:
		e.audit(bg, rc.id, spec.ID, types.AuditJobFailed, errString(jobErr))
	case types.JobStatusSkipped:
		e.audit(bg, rc.id, spec.ID, types.AuditJobSkipped, errString(jobErr))
	case types.JobStatusCancelled:
		e.audit(bg, rc.id, spec.ID, types.AuditJobCancelled, "")
	}
	e.emit(bg, rc.id, types.EventTypeJobStatus, spec.ID, map[string]interface{}{
		"status": string(status),
		"error":  errString(jobErr),
	})
}

// finishExecution settles the execution's terminal (or paused) state.
func (e *Engine) finishExecution(ctx context.Context, rc *execContext, paused bool, levelErr error, started time.Time) {
	// Pending jobs left behind by cancellation are marked cancelled.
	rc.mu.Lock()
	cancelled := rc.cancelled || rc.runCtx.Err() != nil
	var leftover []string
	if cancelled && !paused {
		for id, run := range rc.runs {
			if !run.Status.Terminal() {
				leftover = append(leftover, id)
			}
		}
	}
	failed := false
	for _, run := range rc.runs {
		if run.Status == types.JobStatusFailed {
			failed = true
			break
		}
	}
	rc.mu.Unlock()

	for _, id := range leftover {
		if spec := rc.specFor(id); spec != nil {
			e.finishJob(rc, spec, types.JobStatusCancelled, nil, nil, time.Now().UTC())
		}
	}

	status := types.ExecutionStatusCompleted
	errMsg := ""
	var action types.AuditAction

	switch {
	case paused:
		status = types.ExecutionStatusPaused
		action = types.AuditExecutionPaused
		if levelErr != nil {
			errMsg = levelErr.Error()
		}
	case cancelled:
		status = types.ExecutionStatusCancelled
		action = types.AuditExecutionCancelled
	case levelErr != nil:
		status = types.ExecutionStatusFailed
		errMsg = levelErr.Error()
		action = types.AuditExecutionFailed
	case failed:
		status = types.ExecutionStatusFailed
		errMsg = "one or more jobs failed"
		action = types.AuditExecutionFailed
	default:
		action = types.AuditExecutionCompleted
	}

	if err := e.store.UpdateExecutionStatus(ctx, rc.id, status, errMsg); err != nil {
		e.logger.Error("update execution status failed", "execution_id", rc.id, "error", err)
	}
	e.audit(ctx, rc.id, "", action, errMsg)
	e.emit(ctx, rc.id, types.EventTypeExecutionStatus, "", map[string]interface{}{
		"status": string(status),
		"error":  errMsg,
	})

	metrics.ExecutionsTotal.WithLabelValues(string(status)).Inc()
	metrics.ExecutionDuration.WithLabelValues(string(status)).Observe(time.Since(started).Seconds())

	if e.notifier != nil && status.Terminal() {
		n := &notify.Notification{
			ExecutionID: rc.id,
			Status:      status,
			Error:       errMsg,
			Timestamp:   time.Now().UTC(),
		}
		if exec, err := e.store.GetExecution(ctx, rc.id); err == nil {
			n.Name = exec.Name
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.logger.Warn("notification failed", "execution_id", rc.id, "error", err)
		}
	}

	e.logger.Info("execution finished",
		"execution_id", rc.id,
		"status", string(status),
		"duration", time.Since(started),
	)
}

// retryBackoff builds the exponential backoff schedule for a retry policy.
func retryBackoff(policy *types.RetryPolicy) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.RandomizationFactor = 0
	if policy != nil {
		if policy.BaseDelay > 0 {
			bo.InitialInterval = policy.BaseDelay
		}
		if policy.BackoffMultiplier > 0 {
			bo.Multiplier = policy.BackoffMultiplier
		}
	}
	return bo
}

func finalStatusLabel(err error) string {
	if err != nil {
		return string(types.JobStatusFailed)
	}
	return string(types.JobStatusCompleted)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
