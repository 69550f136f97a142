// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/nishisan-dev/flo/internal/engine"
)

// statsInterval é o intervalo entre relatórios periódicos.
const statsInterval = 1 * time.Minute

// StatsReporter emite métricas periódicas do engine e do sistema no log.
type StatsReporter struct {
	stats     func() engine.Stats
	logger    *slog.Logger
	startTime time.Time
	dataDir   string
}

// NewStatsReporter cria o reporter sobre a função de snapshot do engine.
func NewStatsReporter(stats func() engine.Stats, dataDir string, logger *slog.Logger) *StatsReporter {
	return &StatsReporter{
		stats:     stats,
		logger:    logger.With("component", "stats"),
		startTime: time.Now(),
		dataDir:   dataDir,
	}
}

// Run emite um relatório por intervalo até o context ser cancelado.
func (r *StatsReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *StatsReporter) report() {
	es := r.stats()
	sys := CollectSystemStats(r.dataDir)

	r.logger.Info("server stats",
		"uptime_s", time.Since(r.startTime).Seconds(),
		"clients", es.Clients,
		"events_produced", es.Produced,
		"events_delivered", es.Delivered,
		"persist_failures", es.PersistFailed,
		"cache_entries", es.Cache.Entries,
		"cache_bytes", es.Cache.UsedBytes,
		"cache_evicted", es.Cache.TotalEvicted,
		"cpu_percent", sys.CPUPercent,
		"mem_percent", sys.MemoryPercent,
		"disk_used_percent", sys.DiskUsagePercent,
	)
}
