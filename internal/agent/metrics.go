package agent

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Metrics is one collected snapshot of host health. Fields are pointers
// so a failed probe is reported as absent rather than zero.
type Metrics struct {
	CPUUsage    *float64
	MemoryUsage *float64
	DiskUsage   *float64
	Custom      map[string]any
}

// CollectMetrics probes the host best-effort. A probe that fails is
// logged and skipped, never fatal: a heartbeat with partial telemetry
// still counts.
func CollectMetrics(ctx context.Context) Metrics {
	var m Metrics

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		slog.Debug("CPU probe failed", "error", err)
	} else if len(percents) > 0 {
		m.CPUUsage = &percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		slog.Debug("Memory probe failed", "error", err)
	} else {
		m.MemoryUsage = &vm.UsedPercent
	}

	if du, err := disk.UsageWithContext(ctx, rootPath()); err != nil {
		slog.Debug("Disk probe failed", "error", err)
	} else {
		m.DiskUsage = &du.UsedPercent
	}

	m.Custom = map[string]any{}
	if info, err := host.InfoWithContext(ctx); err == nil {
		m.Custom["hostname"] = info.Hostname
		m.Custom["os"] = info.OS
		m.Custom["platform"] = info.Platform
		m.Custom["uptime_seconds"] = info.Uptime
	}
	m.Custom["goroutines"] = runtime.NumGoroutine()

	return m
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}
