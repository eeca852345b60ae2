package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout marks a job that exceeded its configured timeout. It is
// retryable by default.
var ErrTimeout = errors.New("job timed out")

// ValidationError rejects a whole submission before any job runs.
type ValidationError struct {
	Reason string
	IDs    []string
}

func (e *ValidationError) Error() string {
	if len(e.IDs) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.IDs, ", "))
}

// HandlerError wraps a failure from a job handler and declares whether the
// engine may retry it.
type HandlerError struct {
	Retryable bool
	Err       error
}

func (e *HandlerError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s handler error: %v", kind, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// NewRetryableError marks a handler failure as safe to retry.
func NewRetryableError(err error) *HandlerError {
	return &HandlerError{Retryable: true, Err: err}
}

// NewFatalError marks a handler failure that must not be retried.
func NewFatalError(err error) *HandlerError {
	return &HandlerError{Retryable: false, Err: err}
}

// IsRetryable reports whether a job failure may be retried. Timeouts and
// undeclared errors are retryable; only an explicit fatal HandlerError and
// critical resource violations are not.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var herr *HandlerError
	if errors.As(err, &herr) {
		return herr.Retryable
	}
	var verr *ViolationError
	if errors.As(err, &verr) {
		return false
	}
	return true
}

// ViolationError forces a running job to failed without further retries.
type ViolationError struct {
	Violation ResourceViolation
}

func (e *ViolationError) Error() string {
	v := e.Violation
	return fmt.Sprintf("%s resource violation on job %s: observed %.1f, limit %.1f", v.Severity, v.JobID, v.Observed, v.Limit)
}

// CacheError is non-fatal: the engine logs it and proceeds as a cache miss.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// CheckpointError surfaces checkpoint persistence failures to the caller of
// pause/resume. Losing a checkpoint silently is a correctness risk.
type CheckpointError struct {
	Op  string
	Err error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }
