// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package server implementa o servidor de eventos flo: listener TCP, front-end
// por conexão e a amarração do engine com storage, snapshots e monitoramento.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/flo/internal/config"
	"github.com/nishisan-dev/flo/internal/engine"
	"github.com/nishisan-dev/flo/internal/monitor"
	"github.com/nishisan-dev/flo/internal/snapshot"
	"github.com/nishisan-dev/flo/internal/store"
)

// Server amarra o engine ao listener e gera os connection ids.
type Server struct {
	engine       *engine.Engine
	logger       *slog.Logger
	maxWriteRate int64
	nextConnId   atomic.Uint64
}

// Run inicia o flo-server e bloqueia até o context ser cancelado.
func Run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr(), err)
	}
	defer ln.Close()

	return RunWithListener(ctx, ln, cfg, logger)
}

// RunWithListener inicia o servidor com um listener já existente (para testes
// e para bind em porta efêmera).
func RunWithListener(ctx context.Context, ln net.Listener, cfg *config.ServerConfig, logger *slog.Logger) error {
	st, err := store.Open(store.Options{
		DataDir:   cfg.Server.DataDir,
		Namespace: cfg.Server.DefaultNamespace,
		MaxEvents: cfg.Server.MaxEvents,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer st.Close()

	if err := monitor.CheckDataDir(cfg.Server.DataDir, logger); err != nil {
		return err
	}

	eng := engine.Start(ctx, st, engine.Options{
		ActorId:          cfg.Server.ActorId,
		DefaultNamespace: cfg.Server.DefaultNamespace,
		MaxCachedEvents:  cfg.Server.MaxCachedEvents,
		MaxCacheBytes:    cfg.Server.MaxCacheMemoryRaw,
	}, logger)

	srv := &Server{
		engine:       eng,
		logger:       logger.With("component", "server"),
		maxWriteRate: cfg.Server.MaxWriteRateRaw,
	}

	if len(cfg.Server.ClusterAddrs) > 0 {
		srv.logger.Info("cluster peers configured but clustering is not active",
			"peers", cfg.Server.ClusterAddrs)
	}

	// Stats reporter periódico: engine + sistema.
	reporter := monitor.NewStatsReporter(eng.Stats, cfg.Server.DataDir, logger)
	go reporter.Run(ctx)

	// Scheduler de snapshots do namespace.
	if cfg.Snapshots.Enabled {
		sched, err := snapshot.NewScheduler(cfg, st.Dir(), logger)
		if err != nil {
			return fmt.Errorf("initializing snapshot scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting snapshot scheduler: %w", err)
		}
	}

	srv.logger.Info("server listening", "address", ln.Addr().String())

	go func() {
		<-ctx.Done()
		srv.logger.Info("shutting down server")
		ln.Close()
	}()

	// Accept loop com backoff para prevenir hot loop em erros consecutivos.
	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				srv.logger.Info("server shutdown complete")
				return nil
			default:
				consecutiveErrors++
				srv.logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}

		consecutiveErrors = 0
		go srv.handleConnection(ctx, conn)
	}
}
