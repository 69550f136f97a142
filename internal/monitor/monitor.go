// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package monitor collects system metrics around the event store and reports
// engine statistics periodically.
package monitor

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// minFreeDiskPercent is the free space threshold below which startup logs a
// warning. The server still starts; produces will surface persistence errors
// if the disk actually fills up.
const minFreeDiskPercent = 5.0

// SystemStats holds collected system metrics.
type SystemStats struct {
	CPUPercent       float64
	MemoryPercent    float64
	DiskUsagePercent float64
	DiskFreeBytes    uint64
}

// CollectSystemStats gathers a point-in-time sample of system metrics.
// Collection failures leave the corresponding field at zero.
func CollectSystemStats(dataDir string) SystemStats {
	var stats SystemStats

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		stats.CPUPercent = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
	}
	if usage, err := disk.Usage(dataDir); err == nil {
		stats.DiskUsagePercent = usage.UsedPercent
		stats.DiskFreeBytes = usage.Free
	}

	return stats
}

// CheckDataDir verifies the data directory is usable and warns when free
// space is critically low.
func CheckDataDir(dataDir string, logger *slog.Logger) error {
	usage, err := disk.Usage(dataDir)
	if err != nil {
		return fmt.Errorf("checking data dir %s: %w", dataDir, err)
	}

	freePercent := 100.0 - usage.UsedPercent
	if freePercent < minFreeDiskPercent {
		logger.Warn("data dir is low on disk space",
			"data_dir", dataDir,
			"free_percent", freePercent,
			"free_bytes", usage.Free,
		)
	}
	return nil
}
