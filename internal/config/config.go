package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Service   ServiceConfig         `koanf:"service"`
	Listener  ListenerConfig        `koanf:"listener"`
	Postgres  PostgresConfig        `koanf:"postgres"`
	Ingest    IngestConfig          `koanf:"ingest"`
	Stats     StatsConfig           `koanf:"stats"`
	Routers   map[string]RouterMeta `koanf:"routers"`
}

// RouterMeta attaches operator-facing metadata to a BMP peer address,
// keyed by that address in the config file.
type RouterMeta struct {
	Name     string `koanf:"name"`
	Location string `koanf:"location"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// ListenerConfig configures the raw TCP socket routers speak BMP to.
type ListenerConfig struct {
	BMPListen         string `koanf:"bmp_listen"`
	MaxConnections    int    `koanf:"max_connections"`
	ReadTimeoutMs     int    `koanf:"read_timeout_ms"`
	MaxMessageBytes   int    `koanf:"max_message_bytes"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type IngestConfig struct {
	BatchSize           int  `koanf:"batch_size"`
	FlushIntervalMs     int  `koanf:"flush_interval_ms"`
	ChannelBufferSize   int  `koanf:"channel_buffer_size"`
	StoreRawPDUs        bool `koanf:"store_raw_pdus"`
	StoreRawPDUsCompress bool `koanf:"store_raw_pdus_compress"`
}

// StatsConfig controls the in-memory per-peer counter rollup.
type StatsConfig struct {
	RollupIntervalMs int `koanf:"rollup_interval_ms"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BMPCOLLECTOR_POSTGRES__DSN → postgres.dsn
	if err := k.Load(env.Provider("BMPCOLLECTOR_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BMPCOLLECTOR_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bmpcollectord-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Listener: ListenerConfig{
			BMPListen:       "0.0.0.0:11019",
			MaxConnections:  256,
			ReadTimeoutMs:   60000,
			MaxMessageBytes: 16777216,
		},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Ingest: IngestConfig{
			BatchSize:            1000,
			FlushIntervalMs:      500,
			ChannelBufferSize:    16,
			StoreRawPDUsCompress: true,
		},
		Stats: StatsConfig{
			RollupIntervalMs: 10000,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Listener.BMPListen == "" {
		return fmt.Errorf("config: listener.bmp_listen is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	if c.Ingest.FlushIntervalMs <= 0 {
		return fmt.Errorf("config: ingest.flush_interval_ms must be > 0 (got %d)", c.Ingest.FlushIntervalMs)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("config: ingest.batch_size must be > 0 (got %d)", c.Ingest.BatchSize)
	}
	if c.Ingest.ChannelBufferSize <= 0 {
		return fmt.Errorf("config: ingest.channel_buffer_size must be > 0 (got %d)", c.Ingest.ChannelBufferSize)
	}
	if c.Listener.MaxMessageBytes <= 0 {
		return fmt.Errorf("config: listener.max_message_bytes must be > 0 (got %d)", c.Listener.MaxMessageBytes)
	}
	if c.Listener.MaxConnections <= 0 {
		return fmt.Errorf("config: listener.max_connections must be > 0 (got %d)", c.Listener.MaxConnections)
	}
	if c.Stats.RollupIntervalMs <= 0 {
		return fmt.Errorf("config: stats.rollup_interval_ms must be > 0 (got %d)", c.Stats.RollupIntervalMs)
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	return nil
}
