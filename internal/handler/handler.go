// Package handler provides abstractions for executing pipeline jobs.
package handler

import (
	"context"

	"github.com/forgeml/orchestrator/pkg/types"
)

// Handler executes a single job. Implementations receive the job's spec and
// a Context exposing dependency outputs, logging, and progress reporting.
// The returned map becomes the job's output and is visible to dependents.
//
// A handler signals a non-retryable failure by returning a fatal error via
// types.NewFatalError; any other error is subject to the job's retry policy.
type Handler interface {
	Handle(ctx context.Context, spec *types.JobSpec, hctx *Context) (map[string]interface{}, error)
}

// Func adapts a plain function to the Handler interface.
type Func func(ctx context.Context, spec *types.JobSpec, hctx *Context) (map[string]interface{}, error)

func (f Func) Handle(ctx context.Context, spec *types.JobSpec, hctx *Context) (map[string]interface{}, error) {
	return f(ctx, spec, hctx)
}

// LogSink receives log lines emitted by a handler during a run.
type LogSink func(line string)

// ProgressSink receives progress reports in the range [0, 1].
type ProgressSink func(fraction float64, message string)

// Context carries the per-invocation environment handed to a handler. It is
// valid only for the duration of the Handle call.
type Context struct {
	ExecutionID string
	Attempt     int

	outputs  map[string]map[string]interface{}
	logSink  LogSink
	progress ProgressSink
}

// NewContext builds a handler context. outputs holds the outputs of the
// job's terminal dependencies keyed by job id; sinks may be nil.
func NewContext(executionID string, attempt int, outputs map[string]map[string]interface{}, logSink LogSink, progress ProgressSink) *Context {
	return &Context{
		ExecutionID: executionID,
		Attempt:     attempt,
		outputs:     outputs,
		logSink:     logSink,
		progress:    progress,
	}
}

// Output returns the output of a completed dependency, or nil when the
// dependency produced none or was skipped.
func (c *Context) Output(jobID string) map[string]interface{} {
	return c.outputs[jobID]
}

// Outputs returns all dependency outputs keyed by job id.
func (c *Context) Outputs() map[string]map[string]interface{} {
	return c.outputs
}

// Log records a log line on the job's run and streams it to subscribers.
func (c *Context) Log(line string) {
	if c.logSink != nil {
		c.logSink(line)
	}
}

// UpdateProgress reports completion progress for long-running jobs.
func (c *Context) UpdateProgress(fraction float64, message string) {
	if c.progress != nil {
		c.progress(fraction, message)
	}
}
