package ddpush

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetricsCollector collects basic process and runtime metrics
type SystemMetricsCollector struct {
	BaseCollector
	proc *process.Process
}

// NewSystemMetricsCollector creates a new system metrics collector. Process
// level gauges are skipped when the process handle is unavailable.
func NewSystemMetricsCollector(logger *zap.Logger) *SystemMetricsCollector {
	c := &SystemMetricsCollector{
		BaseCollector: NewBaseCollector("system", logger),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		c.logger.Warn("failed to get process handle", zap.Error(err))
		return c
	}
	c.proc = proc
	return c
}

// Collect implements Collector interface
func (s *SystemMetricsCollector) Collect(reg *Registry) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s.setOrRegister(reg, "memory_alloc_bytes", Gauge, int64(ms.Alloc))
	s.setOrRegister(reg, "memory_sys_bytes", Gauge, int64(ms.Sys))
	s.setOrRegister(reg, "memory_heap_inuse_bytes", Gauge, int64(ms.HeapInuse))
	s.setOrRegister(reg, "memory_stack_inuse_bytes", Gauge, int64(ms.StackInuse))
	s.setOrRegister(reg, "goroutines_num", Gauge, int64(runtime.NumGoroutine()))
	s.setOrRegister(reg, "gc_runs_total", Counter, int64(ms.NumGC))
	s.setOrRegister(reg, "gc_pause_total_ns", Counter, int64(ms.PauseTotalNs))

	if s.proc == nil {
		return
	}

	if mem, err := s.proc.MemoryInfo(); err == nil {
		s.setOrRegister(reg, "memory_rss_bytes", Gauge, int64(mem.RSS))
	} else {
		s.logger.Debug("failed to read process memory", zap.Error(err))
	}

	// fractional percentages are truncated
	if cpu, err := s.proc.CPUPercent(); err == nil {
		s.setOrRegister(reg, "cpu_percent", Gauge, int64(cpu))
	} else {
		s.logger.Debug("failed to read process cpu", zap.Error(err))
	}

	if fds, err := s.proc.NumFDs(); err == nil {
		s.setOrRegister(reg, "file_descriptors_num", Gauge, int64(fds))
	}

	if threads, err := s.proc.NumThreads(); err == nil {
		s.setOrRegister(reg, "threads_num", Gauge, int64(threads))
	}
}
