// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/flo/internal/config"
)

// Scheduler dispara snapshots do namespace no cron configurado, com guard
// contra execuções sobrepostas.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.SnapshotConfig
	nsDir    string
	baseDir  string
	logger   *slog.Logger
	uploader *Uploader

	mu      sync.Mutex
	running bool
}

// NewScheduler monta o scheduler para o diretório do namespace informado.
func NewScheduler(cfg *config.ServerConfig, nsDir string, logger *slog.Logger) (*Scheduler, error) {
	baseDir := cfg.Snapshots.Dir
	if baseDir == "" {
		baseDir = filepath.Join(cfg.Server.DataDir, "snapshots")
	}

	s := &Scheduler{
		cfg:     cfg.Snapshots,
		nsDir:   nsDir,
		baseDir: baseDir,
		logger:  logger.With("component", "snapshot"),
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(cfg.Snapshots.Schedule, s.runOnce); err != nil {
		return nil, fmt.Errorf("parsing snapshot schedule %q: %w", cfg.Snapshots.Schedule, err)
	}
	s.cron = c

	return s, nil
}

// Start inicializa o uploader (se configurado) e agenda as execuções.
// O cron para quando o context é cancelado.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.S3.Enabled {
		uploader, err := NewUploader(ctx, s.cfg.S3)
		if err != nil {
			return err
		}
		s.uploader = uploader
	}

	s.cron.Start()
	s.logger.Info("snapshot scheduler started",
		"schedule", s.cfg.Schedule,
		"dir", s.baseDir,
		"compression", s.cfg.CompressionMode,
	)

	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()

	return nil
}

// runOnce executa um ciclo de snapshot. Execuções sobrepostas são puladas.
func (s *Scheduler) runOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous snapshot still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	path, err := Create(s.nsDir, s.cfg, s.baseDir)
	if err != nil {
		s.logger.Error("snapshot failed", "error", err)
		return
	}
	s.logger.Info("snapshot created", "path", path)

	if s.uploader != nil {
		namespace := filepath.Base(s.nsDir)
		if err := s.uploader.Upload(context.Background(), path, namespace); err != nil {
			s.logger.Error("snapshot upload failed", "error", err)
			return
		}
		s.logger.Info("snapshot uploaded", "path", path)
	}
}
