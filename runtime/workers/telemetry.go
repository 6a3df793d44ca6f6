package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/realtime"
	"chat-relay/typing"
)

// TelemetryWorker logs process health (CPU, RSS, OS status) together with the
// live gauges of the relay: connected users, sessions and typing indicators.
type TelemetryWorker struct {
	log      *slog.Logger
	registry *realtime.Registry
	typing   *typing.Coordinator
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, registry *realtime.Registry, coordinator *typing.Coordinator, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, registry: registry, typing: coordinator, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.log.Info("Telemetry",
				"pid", os.Getpid(),
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"live_users", len(w.registry.LiveUsers()),
				"sessions", w.registry.TotalSessions(),
				"typing", w.typing.Active(),
			)
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
