// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1kb", 1024, false},
		{"256mb", 256 * 1024 * 1024, false},
		{"1gb", 1024 * 1024 * 1024, false},
		{"  8MB ", 8 * 1024 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5mb", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseByteSize(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefault_AppliesDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 3000 {
		t.Errorf("default port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.DataDir != "." {
		t.Errorf("default data dir = %q", cfg.Server.DataDir)
	}
	if cfg.Server.DefaultNamespace != "default" {
		t.Errorf("default namespace = %q", cfg.Server.DefaultNamespace)
	}
	if cfg.Server.MaxCacheMemory != "512mb" {
		t.Errorf("default cache memory = %q", cfg.Server.MaxCacheMemory)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Server.MaxCacheMemoryRaw != 512*1024*1024 {
		t.Errorf("MaxCacheMemoryRaw = %d", cfg.Server.MaxCacheMemoryRaw)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")

	content := `
server:
  port: 4100
  data_dir: /var/lib/flo
  max_cache_memory: 64mb
  max_write_rate: 8mb
logging:
  level: debug
  format: text
  levels:
    store: warn
snapshots:
  enabled: true
  schedule: "*/5 * * * *"
  compression_mode: zst
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.MaxCacheMemoryRaw != 64*1024*1024 {
		t.Errorf("MaxCacheMemoryRaw = %d", cfg.Server.MaxCacheMemoryRaw)
	}
	if cfg.Server.MaxWriteRateRaw != 8*1024*1024 {
		t.Errorf("MaxWriteRateRaw = %d", cfg.Server.MaxWriteRateRaw)
	}
	if cfg.Logging.Levels["store"] != "warn" {
		t.Errorf("component levels = %v", cfg.Logging.Levels)
	}
	if cfg.Snapshots.CompressionMode != "zst" || cfg.Snapshots.FileExtension() != ".tar.zst" {
		t.Errorf("snapshots = %+v", cfg.Snapshots)
	}
	// Defaults preservados onde o YAML não fala.
	if cfg.Server.DefaultNamespace != "default" {
		t.Errorf("namespace default not applied: %q", cfg.Server.DefaultNamespace)
	}
	if cfg.Snapshots.MaxSnapshots != 5 {
		t.Errorf("max snapshots default = %d", cfg.Snapshots.MaxSnapshots)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"negative port", func(c *ServerConfig) { c.Server.Port = -1 }},
		{"bad cache memory", func(c *ServerConfig) { c.Server.MaxCacheMemory = "lots" }},
		{"bad cluster addr", func(c *ServerConfig) { c.Server.ClusterAddrs = []string{"no-port"} }},
		{"bad compression", func(c *ServerConfig) {
			c.Snapshots.Enabled = true
			c.Snapshots.CompressionMode = "lz4"
		}},
		{"s3 without bucket", func(c *ServerConfig) {
			c.Snapshots.Enabled = true
			c.Snapshots.S3.Enabled = true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLogLevelFlag(t *testing.T) {
	cfg := Default()

	if err := cfg.ParseLogLevelFlag("store=debug"); err != nil {
		t.Fatalf("ParseLogLevelFlag: %v", err)
	}
	if err := cfg.ParseLogLevelFlag("consumer=warn"); err != nil {
		t.Fatalf("ParseLogLevelFlag: %v", err)
	}
	if cfg.Logging.Levels["store"] != "debug" || cfg.Logging.Levels["consumer"] != "warn" {
		t.Errorf("levels = %v", cfg.Logging.Levels)
	}

	if err := cfg.ParseLogLevelFlag("nonsense"); err == nil {
		t.Error("expected error for flag without =")
	}
	if err := cfg.ParseLogLevelFlag("=debug"); err == nil {
		t.Error("expected error for empty component")
	}
}
