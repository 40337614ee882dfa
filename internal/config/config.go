package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"faucet/internal/models"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("FAUCET_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("FAUCET_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("FAUCET_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("FAUCET_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("FAUCET_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	if tls := os.Getenv("FAUCET_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("FAUCET_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("FAUCET_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Storage configuration
	if storageType := os.Getenv("FAUCET_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}

	if dsn := os.Getenv("FAUCET_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}

	if maxOpen := os.Getenv("FAUCET_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}

	if maxIdle := os.Getenv("FAUCET_DATABASE_MAX_IDLE_CONNS"); maxIdle != "" {
		if conns, err := strconv.Atoi(maxIdle); err == nil {
			config.Storage.Database.MaxIdleConns = conns
		}
	}

	// Quota store configuration
	if quotaType := os.Getenv("FAUCET_QUOTA_TYPE"); quotaType != "" {
		config.Quota.Type = quotaType
	}

	if addr := os.Getenv("FAUCET_REDIS_ADDR"); addr != "" {
		config.Quota.Redis.Addr = addr
	}

	if username := os.Getenv("FAUCET_REDIS_USERNAME"); username != "" {
		config.Quota.Redis.Username = username
	}

	if password := os.Getenv("FAUCET_REDIS_PASSWORD"); password != "" {
		config.Quota.Redis.Password = password
	}

	if db := os.Getenv("FAUCET_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.Quota.Redis.DB = dbNum
		}
	}

	if poolSize := os.Getenv("FAUCET_REDIS_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			config.Quota.Redis.PoolSize = size
		}
	}

	// Ledger configuration. The secret key is env-only on purpose so it
	// never has to live in a config file.
	if rpcURL := os.Getenv("FAUCET_LEDGER_RPC_URL"); rpcURL != "" {
		config.Ledger.RPCURL = rpcURL
	}

	if secretKey := os.Getenv("FAUCET_LEDGER_SECRET_KEY"); secretKey != "" {
		config.Ledger.SecretKey = secretKey
	}

	if timeout := os.Getenv("FAUCET_LEDGER_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Ledger.RequestTimeout = d
		}
	}

	if rps := os.Getenv("FAUCET_LEDGER_TRANSFERS_PER_SEC"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			config.Ledger.TransfersPerSec = v
		}
	}

	if burst := os.Getenv("FAUCET_LEDGER_TRANSFER_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			config.Ledger.TransferBurst = v
		}
	}

	// Geolocation configuration
	if enabled := os.Getenv("FAUCET_GEO_ENABLED"); enabled != "" {
		config.Geo.Enabled = strings.ToLower(enabled) == "true"
	}

	if dbPath := os.Getenv("FAUCET_GEO_DATABASE_PATH"); dbPath != "" {
		config.Geo.DatabasePath = dbPath
	}

	// Event publishing configuration
	if enabled := os.Getenv("FAUCET_EVENTS_ENABLED"); enabled != "" {
		config.Events.Enabled = strings.ToLower(enabled) == "true"
	}

	if amqpURL := os.Getenv("FAUCET_AMQP_URL"); amqpURL != "" {
		config.Events.AMQPURL = amqpURL
	}

	if queue := os.Getenv("FAUCET_EVENTS_QUEUE"); queue != "" {
		config.Events.Queue = queue
	}

	// Security configuration
	if auth := os.Getenv("FAUCET_ENABLE_AUTH"); auth != "" {
		config.Security.EnableAuth = strings.ToLower(auth) == "true"
	}

	// Bootstrap key from environment
	if bk := os.Getenv("FAUCET_BOOTSTRAP_KEY"); bk != "" {
		config.Security.BootstrapKey = bk
	}

	// Logging configuration
	if level := os.Getenv("FAUCET_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("FAUCET_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("FAUCET_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("FAUCET_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("FAUCET_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("FAUCET_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("FAUCET_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Tracing configuration
	if enabled := os.Getenv("FAUCET_TRACING_ENABLED"); enabled != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(enabled) == "true"
	}

	if exporter := os.Getenv("FAUCET_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("FAUCET_TRACING_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Set example bootstrap key
	config.Security.BootstrapKey = "fct_your-bootstrap-key-here"

	// Enable authentication for example
	config.Security.EnableAuth = true

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
