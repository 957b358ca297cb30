package workers

import (
	"context"
	"log/slog"
	"market-chat/contract"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsProvider returns gauges sampled at each telemetry tick.
type StatsProvider func() map[string]any

// TelemetryWorker periodically logs process health (RSS, CPU) together
// with the gauges of the registered providers.
type TelemetryWorker struct {
	log       *slog.Logger
	interval  time.Duration
	providers map[string]StatsProvider
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration, providers map[string]StatsProvider) *TelemetryWorker {
	return &TelemetryWorker{
		log:       log,
		interval:  interval,
		providers: providers,
	}
}

func (w *TelemetryWorker) GetName() contract.WorkerName {
	return "telemetry"
}

// Run returns nil when ctx ends so the supervisor does not restart it.
func (w *TelemetryWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.log.Info("Telemetry", w.Sample(p)...)
		}
	}
}

// Sample collects one set of key/value attributes. Process stats that
// cannot be read are skipped.
func (w *TelemetryWorker) Sample(p *process.Process) []any {
	var attrs []any
	if p != nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			attrs = append(attrs, "rss_bytes", memInfo.RSS)
		}
		if cpu, err := p.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu_percent", cpu)
		}
	}
	for group, provider := range w.providers {
		var values []any
		for k, v := range provider() {
			values = append(values, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group(group, values...))
	}
	return attrs
}
