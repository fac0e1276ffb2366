package workers

import (
	"context"
	"duo-lab/domain"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Gauge copies one live figure of a component into the sample.
type Gauge func(h *domain.NodeHealth)

// HealthMonitor samples the backend process (CPU, RAM, state) and the gauges
// of its components at a fixed interval. The last sample is served on /health.
type HealthMonitor struct {
	log      *slog.Logger
	interval time.Duration
	gauges   []Gauge

	mu     sync.RWMutex
	latest domain.NodeHealth
}

func NewHealthMonitor(log *slog.Logger, interval time.Duration, gauges ...Gauge) *HealthMonitor {
	return &HealthMonitor{log: log, interval: interval, gauges: gauges}
}

func (w *HealthMonitor) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample(p)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *HealthMonitor) sample(p *process.Process) {
	health := domain.NodeHealth{
		PID:        p.Pid,
		PIDStatus:  domain.UNKNOWN,
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	}
	if status, err := p.Status(); err == nil {
		health.PIDStatus = domain.ToStatus(status)
	} else {
		w.log.Debug("Error while finding process status", "err", err)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		health.CPU = cpu
	} else {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	}
	if ram, err := p.MemoryPercent(); err == nil {
		health.RAM = ram
	} else {
		w.log.Debug("Error while finding process ram usage", "err", err)
	}
	if mem, err := p.MemoryInfo(); err == nil {
		health.RSS = mem.RSS
	}
	for _, gauge := range w.gauges {
		gauge(&health)
	}

	w.mu.Lock()
	w.latest = health
	w.mu.Unlock()
	w.log.Debug("Health sampled", "cpu", health.CPU, "ram", health.RAM,
		"subscriptions", health.Subscriptions, "connections", health.Connections, "backlog", health.Backlog)
}

// Latest returns the last sample, zero before the first one.
func (w *HealthMonitor) Latest() domain.NodeHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}
