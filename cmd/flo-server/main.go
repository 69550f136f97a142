// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/nishisan-dev/flo/internal/config"
	"github.com/nishisan-dev/flo/internal/logging"
	"github.com/nishisan-dev/flo/internal/server"
)

// VERSION é preenchida via build flags nos binários oficiais.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "flo-server"
	app.Usage = "append-only event-log server"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to YAML config file (flags override file values)",
		},
		cli.IntFlag{
			Name:  "port, p",
			Value: 3000,
			Usage: "port that the server should listen on",
		},
		cli.StringFlag{
			Name:  "data-dir, d",
			Value: ".",
			Usage: "root directory for namespace subdirectories",
		},
		cli.StringFlag{
			Name:  "default-namespace",
			Value: "default",
			Usage: "initial namespace for connections that never send FLO_INI",
		},
		cli.IntFlag{
			Name:  "max-events",
			Usage: "cap on index size / retention, 0 for platform max",
		},
		cli.IntFlag{
			Name:  "max-cached-events",
			Usage: "entry cap on the hot cache, 0 for platform max",
		},
		cli.IntFlag{
			Name:  "max-cache-memory, M",
			Value: 512,
			Usage: "byte cap on the hot cache, in MiB",
		},
		cli.StringSliceFlag{
			Name:  "log, L",
			Usage: "per-component log level, component=level (repeatable)",
		},
		cli.StringFlag{
			Name:  "log-dest",
			Usage: "log file path, stdout when empty",
		},
		cli.StringSliceFlag{
			Name:  "cluster-addr, c",
			Usage: "cluster peer address host:port (repeatable, accepted but unused)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dest, cfg.Logging.Levels)
	defer logCloser.Close()

	// Context com cancelamento via signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

// buildConfig monta a configuração final: arquivo YAML (opcional) com as
// flags da linha de comando por cima.
func buildConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("data-dir") {
		cfg.Server.DataDir = c.String("data-dir")
	}
	if c.IsSet("default-namespace") {
		cfg.Server.DefaultNamespace = c.String("default-namespace")
	}
	if c.IsSet("max-events") {
		cfg.Server.MaxEvents = c.Int("max-events")
	}
	if c.IsSet("max-cached-events") {
		cfg.Server.MaxCachedEvents = c.Int("max-cached-events")
	}
	if c.IsSet("max-cache-memory") {
		cfg.Server.MaxCacheMemory = fmt.Sprintf("%dmb", c.Int("max-cache-memory"))
	}
	if c.IsSet("log-dest") {
		cfg.Logging.Dest = c.String("log-dest")
	}
	if c.IsSet("cluster-addr") {
		cfg.Server.ClusterAddrs = c.StringSlice("cluster-addr")
	}
	for _, flag := range c.StringSlice("log") {
		if err := cfg.ParseLogLevelFlag(flag); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
