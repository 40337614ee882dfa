// Package storage provides the persistence port for the faucet: the
// append-only transaction log, the singleton system setting, and API keys.
// It can be implemented by different backends (PostgreSQL, SQLite, memory);
// the transaction log exposes no update or delete operations.
package storage

import (
	"context"
	"time"

	"faucet/internal/models"
)

// Storage defines the persistence contract.
type Storage interface {
	// AppendTransaction persists an immutable disbursement record and returns
	// its ID.
	AppendTransaction(ctx context.Context, record *models.TransactionRecord) (string, error)

	// TransactionHistory returns the most recent records, optionally filtered
	// by wallet address and/or IP address, newest first.
	TransactionHistory(ctx context.Context, walletAddress, ipAddress string, limit int) ([]*models.TransactionRecord, error)

	// WalletActivity returns all records for a wallet since the given time,
	// newest first.
	WalletActivity(ctx context.Context, walletAddress string, since time.Time) ([]*models.TransactionRecord, error)

	// TransactionStats aggregates counts and volume per status since the
	// given time.
	TransactionStats(ctx context.Context, since time.Time) ([]models.StatusStat, error)

	// TopSources ranks requesting IPs by activity since the given time.
	TopSources(ctx context.Context, since time.Time, limit int) ([]models.SourceStat, error)

	// GeographicDistribution aggregates activity per country since the given
	// time, most active first.
	GeographicDistribution(ctx context.Context, since time.Time) ([]models.CountryStat, error)

	// TopCountries ranks countries by activity with percentage of total.
	TopCountries(ctx context.Context, since time.Time, limit int) (*models.TopCountries, error)

	// HourlyDistribution counts transactions per UTC hour of day since the
	// given time.
	HourlyDistribution(ctx context.Context, since time.Time) ([]models.HourlyStat, error)

	// PerformanceStats summarizes the response-time distribution since the
	// given time. Returns ErrNotFound when no records exist in the window.
	PerformanceStats(ctx context.Context, since time.Time) (*models.PerformanceStats, error)

	// CreateSystemSetting stores the singleton configuration. Returns
	// ErrAlreadyExists when a setting is already present.
	CreateSystemSetting(ctx context.Context, setting *models.SystemSetting) error

	// GetSystemSetting returns the singleton configuration, or ErrNotFound.
	GetSystemSetting(ctx context.Context) (*models.SystemSetting, error)

	// UpdateSystemSetting replaces the singleton configuration, or ErrNotFound
	// when none exists yet.
	UpdateSystemSetting(ctx context.Context, setting *models.SystemSetting) error

	// CreateAPIKey stores a new API key.
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	// GetAPIKeyByHash retrieves an API key by its SHA-256 hash, or ErrNotFound.
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)

	// Ping verifies the storage backend is reachable and operational.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources.
	Close() error
}

// Config holds configuration for storage backends.
type Config struct {
	// Type specifies the storage backend type (postgres, sqlite, memory).
	Type string `json:"type" yaml:"type"`

	// ConnectionString is used for database backends.
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// MaxOpenConns bounds the database connection pool.
	MaxOpenConns int `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
}
