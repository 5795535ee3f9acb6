// Package selfhealth reports the daemon's own resource usage — CPU, memory,
// goroutine count — so an operator can tell "daemon wedged" apart from
// "daemon idle because market closed". Grounded on the teacher's
// getSystemStats helper, promoted from an inline handler method to a
// standalone component used by the status API.
package selfhealth

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time reading of process and host resource usage.
type Snapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	CPUPercent     float64 `json:"cpu_percent"`      // host-wide, averaged over the sample window
	ProcCPUPercent float64 `json:"proc_cpu_percent"` // this process only
	MemUsedPercent float64 `json:"mem_used_percent"` // host-wide
	ProcRSSBytes   uint64  `json:"proc_rss_bytes"`
	Goroutines     int     `json:"goroutines"`
}

// Monitor samples resource usage on demand. Sampling blocks for sampleWindow
// while gopsutil measures CPU delta, so callers on a hot path should not
// invoke Snapshot directly — it belongs behind the status endpoint or a
// scheduled job, not the order pipeline.
type Monitor struct {
	startedAt    time.Time
	sampleWindow time.Duration
	proc         *process.Process
	log          zerolog.Logger
}

// New builds a Monitor for the current process.
func New(log zerolog.Logger) *Monitor {
	m := &Monitor{
		startedAt:    time.Now(),
		sampleWindow: 100 * time.Millisecond,
		log:          log.With().Str("component", "selfhealth").Logger(),
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		m.proc = p
	} else {
		m.log.Warn().Err(err).Msg("failed to attach process handle, process metrics unavailable")
	}

	return m
}

// Snapshot takes a fresh resource reading. The host CPU sample blocks for
// the monitor's sample window.
func (m *Monitor) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeSeconds: time.Since(m.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	hostCPU, err := cpu.Percent(m.sampleWindow, false)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to sample host cpu")
	} else if len(hostCPU) > 0 {
		snap.CPUPercent = hostCPU[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to sample host memory")
	} else {
		snap.MemUsedPercent = vm.UsedPercent
	}

	if m.proc != nil {
		if pct, err := m.proc.CPUPercent(); err == nil {
			snap.ProcCPUPercent = pct
		}
		if mi, err := m.proc.MemoryInfo(); err == nil && mi != nil {
			snap.ProcRSSBytes = mi.RSS
		}
	}

	return snap
}

// Healthy reports whether the process looks alive enough to keep serving:
// not pinned at 100% host CPU and not leaking goroutines without bound.
// maxGoroutines <= 0 disables the goroutine check.
func (s Snapshot) Healthy(maxGoroutines int) bool {
	if s.CPUPercent >= 99.5 {
		return false
	}
	if maxGoroutines > 0 && s.Goroutines > maxGoroutines {
		return false
	}
	return true
}
