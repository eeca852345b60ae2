package monitor

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// ProcSampler samples the orchestrator's own process via procfs. CPU percent
// is computed from the CPU-time delta between consecutive samples, averaged
// across cores. On platforms without procfs it degrades to Go runtime
// memory stats with zero CPU.
type ProcSampler struct {
	mu          sync.Mutex
	lastCPUTime float64
	lastSample  time.Time
}

// NewProcSampler creates a process-level sampler.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{}
}

func (s *ProcSampler) Sample() (Sample, error) {
	proc, err := procfs.Self()
	if err != nil {
		return s.runtimeFallback(), nil
	}
	stat, err := proc.Stat()
	if err != nil {
		return Sample{}, fmt.Errorf("read proc stat: %w", err)
	}

	out := Sample{
		MemoryMB: float64(stat.ResidentMemory()) / (1024 * 1024),
	}

	now := time.Now()
	cpuTime := stat.CPUTime()

	s.mu.Lock()
	if !s.lastSample.IsZero() {
		wall := now.Sub(s.lastSample).Seconds()
		if wall > 0 {
			out.CPUPercent = (cpuTime - s.lastCPUTime) / wall * 100
		}
	}
	s.lastCPUTime = cpuTime
	s.lastSample = now
	s.mu.Unlock()

	return out, nil
}

func (s *ProcSampler) runtimeFallback() Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Sample{MemoryMB: float64(ms.Alloc) / (1024 * 1024)}
}
