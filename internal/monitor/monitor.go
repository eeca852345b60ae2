// Package monitor samples resource usage of running jobs and raises
// violations against their configured limits.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/forgeml/orchestrator/pkg/types"
)

// Sample is one observation of resource usage.
type Sample struct {
	MemoryMB   float64
	CPUPercent float64
}

// Sampler produces resource samples. The process-level implementation reads
// procfs; tests inject a fake.
type Sampler interface {
	Sample() (Sample, error)
}

// Monitor watches running jobs at a fixed interval and emits a
// ResourceViolation whenever a sample exceeds a job's limits. High and
// critical violations are consumed by the execution engine for enforcement;
// everything is surfaced for audit logging.
type Monitor struct {
	sampler  Sampler
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]*jobWatch

	violations chan types.ResourceViolation
}

type jobWatch struct {
	limits    types.ResourceLimits
	startedAt time.Time
	stop      chan struct{}
}

// Config holds monitor configuration.
type Config struct {
	// Interval between samples (default: 5s).
	Interval time.Duration

	// Buffer for the violations channel.
	Buffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 5 * time.Second,
		Buffer:   64,
	}
}

// New creates a monitor. A nil sampler falls back to the procfs sampler.
func New(sampler Sampler, cfg *Config, logger *slog.Logger) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if sampler == nil {
		sampler = NewProcSampler()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sampler:    sampler,
		interval:   cfg.Interval,
		logger:     logger,
		jobs:       make(map[string]*jobWatch),
		violations: make(chan types.ResourceViolation, cfg.Buffer),
	}
}

// Violations returns the stream of violations across all monitored jobs.
func (m *Monitor) Violations() <-chan types.ResourceViolation {
	return m.violations
}

// StartMonitoring begins periodic sampling for a job. Jobs without limits
// are not watched.
func (m *Monitor) StartMonitoring(jobID string, limits *types.ResourceLimits) {
	if limits == nil {
		return
	}

	m.mu.Lock()
	if _, exists := m.jobs[jobID]; exists {
		m.mu.Unlock()
		return
	}
	w := &jobWatch{
		limits:    *limits,
		startedAt: time.Now().UTC(),
		stop:      make(chan struct{}),
	}
	m.jobs[jobID] = w
	m.mu.Unlock()

	go m.watch(jobID, w)
}

// StopMonitoring ends sampling for a job. Safe to call for unmonitored ids.
func (m *Monitor) StopMonitoring(jobID string) {
	m.mu.Lock()
	w, ok := m.jobs[jobID]
	if ok {
		delete(m.jobs, jobID)
	}
	m.mu.Unlock()

	if ok {
		close(w.stop)
	}
}

func (m *Monitor) watch(jobID string, w *jobWatch) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			m.check(jobID, w)
		}
	}
}

func (m *Monitor) check(jobID string, w *jobWatch) {
	now := time.Now().UTC()

	if w.limits.MaxDuration > 0 {
		elapsed := now.Sub(w.startedAt)
		if elapsed > w.limits.MaxDuration {
			m.emit(types.ResourceViolation{
				JobID:     jobID,
				Kind:      types.ViolationTime,
				Severity:  severityFor(float64(elapsed), float64(w.limits.MaxDuration)),
				Observed:  elapsed.Seconds(),
				Limit:     w.limits.MaxDuration.Seconds(),
				Timestamp: now,
			})
		}
	}

	if w.limits.MaxMemoryMB <= 0 && w.limits.MaxCPUPercent <= 0 {
		return
	}

	sample, err := m.sampler.Sample()
	if err != nil {
		m.logger.Warn("resource sample failed", "job_id", jobID, "error", err)
		return
	}

	if w.limits.MaxMemoryMB > 0 && sample.MemoryMB > w.limits.MaxMemoryMB {
		m.emit(types.ResourceViolation{
			JobID:     jobID,
			Kind:      types.ViolationMemory,
			Severity:  severityFor(sample.MemoryMB, w.limits.MaxMemoryMB),
			Observed:  sample.MemoryMB,
			Limit:     w.limits.MaxMemoryMB,
			Timestamp: now,
		})
	}

	if w.limits.MaxCPUPercent > 0 && sample.CPUPercent > w.limits.MaxCPUPercent {
		m.emit(types.ResourceViolation{
			JobID:     jobID,
			Kind:      types.ViolationCPU,
			Severity:  severityFor(sample.CPUPercent, w.limits.MaxCPUPercent),
			Observed:  sample.CPUPercent,
			Limit:     w.limits.MaxCPUPercent,
			Timestamp: now,
		})
	}
}

func (m *Monitor) emit(v types.ResourceViolation) {
	m.logger.Warn("resource violation",
		"job_id", v.JobID,
		"kind", string(v.Kind),
		"severity", string(v.Severity),
		"observed", v.Observed,
		"limit", v.Limit,
	)
	select {
	case m.violations <- v:
	default:
		// Consumer lagging; the next sample will re-raise if still over.
	}
}

// severityFor scales severity with how far over the limit the sample is:
// more than 100% over is critical, 50% high, 20% medium, anything else low.
func severityFor(observed, limit float64) types.ViolationSeverity {
	if limit <= 0 {
		return types.SeverityLow
	}
	over := observed/limit - 1
	switch {
	case over > 1.0:
		return types.SeverityCritical
	case over > 0.5:
		return types.SeverityHigh
	case over > 0.2:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// Close stops all watches.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.jobs {
		close(w.stop)
		delete(m.jobs, id)
	}
}
