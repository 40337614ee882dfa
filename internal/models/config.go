// Package models - Service configuration and operational settings.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, quota, ...)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - The operational config here is distinct from the SystemSetting document:
//   operators own this file, administrators own the SystemSetting via the API.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Quota store type constants
const (
	QuotaTypeMemory = "memory"
	QuotaTypeRedis  = "redis"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Quota         QuotaConfig         `yaml:"quota" json:"quota"`
	Ledger        LedgerConfig        `yaml:"ledger" json:"ledger"`
	Geo           GeoConfig           `yaml:"geo" json:"geo"`
	Events        EventsConfig        `yaml:"events" json:"events"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// QuotaConfig selects and configures the rate-limit counter store.
type QuotaConfig struct {
	Type  string      `yaml:"type" json:"type"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// LedgerConfig configures the funding-source chain client.
type LedgerConfig struct {
	RPCURL          string        `yaml:"rpc_url" json:"rpc_url"`
	SecretKey       string        `yaml:"secret_key" json:"-"` // never serialized
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	TransfersPerSec float64       `yaml:"transfers_per_sec" json:"transfers_per_sec"`
	TransferBurst   int           `yaml:"transfer_burst" json:"transfer_burst"`
}

// GeoConfig configures country resolution for audit records.
type GeoConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	DatabasePath string `yaml:"database_path" json:"database_path"`
}

// EventsConfig configures the outcome event publisher.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	AMQPURL string `yaml:"amqp_url" json:"amqp_url"`
	Queue   string `yaml:"queue" json:"queue"`
}

type SecurityConfig struct {
	EnableAuth   bool   `yaml:"enable_auth" json:"enable_auth"`
	BootstrapKey string `yaml:"bootstrap_key" json:"-"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // stdout or otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with development-friendly defaults:
// memory storage and quota store, no auth, metrics enabled on a separate port.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
				MaxAge:         300,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
		},
		Quota: QuotaConfig{
			Type: QuotaTypeMemory,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Ledger: LedgerConfig{
			RPCURL:          "https://fullnode.testnet.sui.io",
			RequestTimeout:  30 * time.Second,
			TransfersPerSec: 5,
			TransferBurst:   10,
		},
		Geo: GeoConfig{
			Enabled: false,
		},
		Events: EventsConfig{
			Enabled: false,
			Queue:   "faucet.transactions",
		},
		Security: SecurityConfig{
			EnableAuth: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "faucet",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.TLSEnabled && (c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "") {
		return errors.New("tls_cert_file and tls_key_file are required when TLS is enabled")
	}

	switch c.Storage.Type {
	case StorageTypeMemory:
	case StorageTypePostgres, StorageTypeSQLite:
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Quota.Type {
	case QuotaTypeMemory:
	case QuotaTypeRedis:
		if c.Quota.Redis.Addr == "" {
			return errors.New("redis addr is required for redis quota store")
		}
	default:
		return fmt.Errorf("unsupported quota store type: %s", c.Quota.Type)
	}

	if c.Ledger.RPCURL == "" {
		return errors.New("ledger rpc_url is required")
	}
	if c.Ledger.TransfersPerSec <= 0 {
		return fmt.Errorf("ledger transfers_per_sec must be positive, got %v", c.Ledger.TransfersPerSec)
	}

	if c.Geo.Enabled && c.Geo.DatabasePath == "" {
		return errors.New("geo database_path is required when geo lookup is enabled")
	}
	if c.Events.Enabled {
		if c.Events.AMQPURL == "" {
			return errors.New("events amqp_url is required when events are enabled")
		}
		if c.Events.Queue == "" {
			return errors.New("events queue is required when events are enabled")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return errors.New("metrics port must differ from server port")
		}
	}

	if c.Observability.Tracing.Enabled {
		switch c.Observability.Tracing.Exporter {
		case "stdout":
		case "otlp":
			if c.Observability.Tracing.OTLPEndpoint == "" {
				return errors.New("otlp_endpoint is required for the otlp trace exporter")
			}
		default:
			return fmt.Errorf("unsupported trace exporter: %s", c.Observability.Tracing.Exporter)
		}
	}

	return nil
}
