// Package monitor periodically logs process resource usage so long-running
// worker deployments can be eyeballed without a metrics stack.
package monitor

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// System samples the worker's own process on a fixed interval.
type System struct {
	proc     *process.Process
	interval time.Duration
	logger   zerolog.Logger
}

// New attaches to the current process. A nil proc (unsupported platform) is
// tolerated: sampling then reports runtime stats only.
func New(interval time.Duration, logger zerolog.Logger) *System {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn().Err(err).Msg("Process handle unavailable, resource sampling degraded")
		proc = nil
	}
	return &System{
		proc:     proc,
		interval: interval,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
}

// Run emits one snapshot per interval until ctx is cancelled.
func (s *System) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.snapshot()
		}
	}
}

func (s *System) snapshot() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	evt := s.logger.Info().
		Int("goroutines", runtime.NumGoroutine()).
		Float64("heap_alloc_mb", float64(mem.HeapAlloc)/1024/1024).
		Float64("sys_total_mb", float64(mem.Sys)/1024/1024).
		Uint32("gc_count", mem.NumGC)

	if s.proc != nil {
		if cpuPct, err := s.proc.CPUPercent(); err == nil {
			evt = evt.Float64("cpu_percent", cpuPct)
		}
		if mi, err := s.proc.MemoryInfo(); err == nil && mi != nil {
			evt = evt.Float64("rss_mb", float64(mi.RSS)/1024/1024)
		}
	}
	evt.Msg("Resource snapshot")
}
