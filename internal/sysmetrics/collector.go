// Package sysmetrics snapshots host CPU/memory usage to fold into a
// pipeline run's progress summary, grounded on the teacher's
// internal/daemon.StatsCollector heartbeat-reporting pattern (trimmed to
// the CPU/memory fields a pipeline run cares about — no GPU, disk, or
// network counters, since nothing here transcodes or serves media).
package sysmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time read of host resource usage.
type Snapshot struct {
	CollectedAt      time.Time `json:"collectedAt"`
	OS               string    `json:"os"`
	Arch             string    `json:"arch"`
	CPUCores         int       `json:"cpuCores"`
	CPUPercent       float64   `json:"cpuPercent"`
	MemoryTotalBytes uint64    `json:"memoryTotalBytes"`
	MemoryUsedBytes  uint64    `json:"memoryUsedBytes"`
	MemoryPercent    float64   `json:"memoryPercent"`
}

// Collector gathers Snapshots on demand.
type Collector struct{}

// NewCollector returns a ready-to-use Collector. It carries no state of
// its own; gopsutil reads directly from the host each call.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect samples current CPU and memory usage. A failed sub-read is
// skipped rather than failing the whole snapshot, matching the teacher's
// best-effort heartbeat collection.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{
		CollectedAt: time.Now(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCores = cores
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryTotalBytes = vm.Total
		snap.MemoryUsedBytes = vm.Used
		snap.MemoryPercent = vm.UsedPercent
	}

	return snap
}
