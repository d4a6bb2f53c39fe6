package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"courier/domain"
	"courier/observability"
)

// OnlineCounter is the slice of the presence registry the worker reads.
type OnlineCounter interface {
	OnlineIdentities() []domain.UserID
}

// TelemetryWorker periodically samples process health (RSS, CPU) and the
// presence table, exporting both through the metrics registry and debug logs.
type TelemetryWorker struct {
	log      *slog.Logger
	interval time.Duration
	presence OnlineCounter
	metrics  *observability.Metrics
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration,
	presence OnlineCounter, metrics *observability.Metrics) *TelemetryWorker {
	return &TelemetryWorker{log: log, interval: interval, presence: presence, metrics: metrics}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *TelemetryWorker) sample(proc *process.Process) {
	online := len(w.presence.OnlineIdentities())
	if w.metrics != nil {
		w.metrics.OnlineUsers.Set(float64(online))
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		w.log.Error("failed to collect memory stats", "error", err)
		return
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		w.log.Error("failed to collect cpu stats", "error", err)
		return
	}

	if w.metrics != nil {
		w.metrics.ProcessRSSBytes.Set(float64(memInfo.RSS))
		w.metrics.ProcessCPUPercent.Set(cpuPercent)
	}
	w.log.Debug("telemetry sample",
		"online_users", online,
		"rss_mb", memInfo.RSS/1024/1024,
		"cpu_percent", cpuPercent)
}
