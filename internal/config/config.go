// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config carrega e valida a configuração do flo-server: flags de
// linha de comando por cima de um arquivo YAML opcional.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig representa a configuração completa do flo-server.
type ServerConfig struct {
	Server    ServerSettings `yaml:"server"`
	Logging   LoggingInfo    `yaml:"logging"`
	Snapshots SnapshotConfig `yaml:"snapshots"`
}

// ServerSettings contém os knobs do engine e do listener.
type ServerSettings struct {
	Port             int    `yaml:"port"`              // default: 3000
	DataDir          string `yaml:"data_dir"`          // default: "."
	DefaultNamespace string `yaml:"default_namespace"` // default: "default"
	ActorId          uint16 `yaml:"actor_id"`          // default: 1

	MaxEvents       int    `yaml:"max_events"`        // limite do índice
	MaxCachedEvents int    `yaml:"max_cached_events"` // limite de entradas do cache
	MaxCacheMemory  string `yaml:"max_cache_memory"`  // ex: "512mb"
	MaxWriteRate    string `yaml:"max_write_rate"`    // bytes/s por conexão; vazio = ilimitado

	// Endereços de peers do cluster. Aceitos e validados, não usados ainda.
	ClusterAddrs []string `yaml:"cluster_addrs"`

	// Raw values preenchidos por Validate(); não vêm do YAML.
	MaxCacheMemoryRaw int64 `yaml:"-"`
	MaxWriteRateRaw   int64 `yaml:"-"`
}

// LoggingInfo configura o logger global e os níveis por componente.
type LoggingInfo struct {
	Level  string            `yaml:"level"`  // default: "info"
	Format string            `yaml:"format"` // default: "json"
	Dest   string            `yaml:"dest"`   // arquivo de log; vazio = stdout
	Levels map[string]string `yaml:"levels"` // componente → nível
}

// SnapshotConfig configura o export periódico de snapshots do namespace.
type SnapshotConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Dir             string   `yaml:"dir"`              // default: <data-dir>/snapshots
	Schedule        string   `yaml:"schedule"`         // cron; default: "0 3 * * *"
	CompressionMode string   `yaml:"compression_mode"` // gzip|zst (default: gzip)
	MaxSnapshots    int      `yaml:"max_snapshots"`    // default: 5
	S3              S3Config `yaml:"s3"`
}

// S3Config configura o offload opcional de snapshots para um bucket S3.
type S3Config struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// FileExtension retorna a extensão dos snapshots deste modo de compressão.
func (s SnapshotConfig) FileExtension() string {
	switch s.CompressionMode {
	case "zst":
		return ".tar.zst"
	default:
		return ".tar.gz"
	}
}

// Default retorna a configuração com todos os defaults aplicados.
func Default() *ServerConfig {
	cfg := &ServerConfig{}
	cfg.applyDefaults()
	return cfg
}

// Load lê o arquivo YAML e aplica defaults. A validação final acontece em
// Validate, depois das flags da linha de comando sobrescreverem os campos.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = "."
	}
	if c.Server.DefaultNamespace == "" {
		c.Server.DefaultNamespace = "default"
	}
	if c.Server.ActorId == 0 {
		c.Server.ActorId = 1
	}
	if c.Server.MaxCacheMemory == "" {
		c.Server.MaxCacheMemory = "512mb"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Snapshots.Schedule == "" {
		c.Snapshots.Schedule = "0 3 * * *"
	}
	if c.Snapshots.CompressionMode == "" {
		c.Snapshots.CompressionMode = "gzip"
	}
	if c.Snapshots.MaxSnapshots <= 0 {
		c.Snapshots.MaxSnapshots = 5
	}
}

// Validate checa e normaliza a configuração final.
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxEvents < 0 {
		return fmt.Errorf("server.max_events must be >= 0, got %d", c.Server.MaxEvents)
	}

	parsed, err := ParseByteSize(c.Server.MaxCacheMemory)
	if err != nil {
		return fmt.Errorf("server.max_cache_memory: %w", err)
	}
	if parsed <= 0 {
		return fmt.Errorf("server.max_cache_memory must be > 0, got %s", c.Server.MaxCacheMemory)
	}
	c.Server.MaxCacheMemoryRaw = parsed

	if c.Server.MaxWriteRate != "" {
		rate, err := ParseByteSize(c.Server.MaxWriteRate)
		if err != nil {
			return fmt.Errorf("server.max_write_rate: %w", err)
		}
		c.Server.MaxWriteRateRaw = rate
	}

	for _, addr := range c.Server.ClusterAddrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("server.cluster_addrs: %q is not host:port: %w", addr, err)
		}
	}

	if c.Snapshots.Enabled {
		mode := strings.ToLower(strings.TrimSpace(c.Snapshots.CompressionMode))
		if mode != "gzip" && mode != "zst" {
			return fmt.Errorf("snapshots.compression_mode must be gzip or zst, got %q", c.Snapshots.CompressionMode)
		}
		c.Snapshots.CompressionMode = mode

		if c.Snapshots.S3.Enabled && c.Snapshots.S3.Bucket == "" {
			return fmt.Errorf("snapshots.s3.bucket is required when s3 upload is enabled")
		}
	}

	return nil
}

// ListenAddr retorna o endereço de escuta do server.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// ParseByteSize converte strings human-readable como "256mb", "1gb" para bytes.
// Sem sufixo, o valor é em bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "kb"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "kb")
	case strings.HasSuffix(s, "mb"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "mb")
	case strings.HasSuffix(s, "gb"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "gb")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("size must be >= 0, got %d", value)
	}

	return value * multiplier, nil
}

// ParseLogLevelFlag interpreta uma flag -L no formato "componente=nível" e a
// acumula no mapa de níveis por componente.
func (c *ServerConfig) ParseLogLevelFlag(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("log level flag must be component=level, got %q", value)
	}
	if c.Logging.Levels == nil {
		c.Logging.Levels = make(map[string]string)
	}
	c.Logging.Levels[parts[0]] = parts[1]
	return nil
}
