package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"faucet/internal/models"
)

// pgSchema creates the faucet tables and the indexes backing history and
// analytics lookups. The transactions table is append-only; the partial
// unique index on system_settings enforces the singleton.
const pgSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	normalized_amount DOUBLE PRECISION NOT NULL,
	tx_hash TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	country TEXT NOT NULL,
	ip_address TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	response_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions (wallet_address);
CREATE INDEX IF NOT EXISTS idx_transactions_ip ON transactions (ip_address);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions (created_at);

CREATE TABLE IF NOT EXISTS system_settings (
	id TEXT PRIMARY KEY,
	singleton BOOLEAN NOT NULL DEFAULT TRUE,
	faucet_amount DOUBLE PRECISION NOT NULL,
	limit_per_ip INTEGER NOT NULL,
	limit_per_wallet INTEGER NOT NULL,
	ttl_per_ip INTEGER NOT NULL,
	ttl_per_wallet INTEGER NOT NULL,
	faucet_enabled BOOLEAN NOT NULL,
	rate_limit_enabled BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_system_settings_singleton ON system_settings (singleton);

CREATE TABLE IF NOT EXISTS api_keys (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	key_hash TEXT NOT NULL UNIQUE,
	prefix TEXT NOT NULL,
	permissions JSONB NOT NULL,
	enabled BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStorage implements the Storage interface using PostgreSQL.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

var _ Storage = (*PostgresStorage)(nil)

// NewPostgresStorage creates a new PostgreSQL storage instance and ensures
// the schema exists.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolCfg, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(config.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// AppendTransaction persists a disbursement record.
func (ps *PostgresStorage) AppendTransaction(ctx context.Context, record *models.TransactionRecord) (string, error) {
	if err := record.Validate(); err != nil {
		return "", err
	}

	id := record.ID
	if id == "" {
		id = models.NewRecordID()
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := ps.pool.Exec(ctx, `
		INSERT INTO transactions (
			id, wallet_address, normalized_amount, tx_hash, status, error_message,
			country, ip_address, user_agent, response_time_ms, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		id, record.WalletAddress, record.NormalizedAmount,
		nullableText(record.TxHash), string(record.Status), nullableText(record.ErrorMessage),
		record.Country, record.IPAddress, record.UserAgent, record.ResponseTime, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to append transaction: %w", err)
	}
	return id, nil
}

// TransactionHistory returns recent records filtered by wallet and/or IP.
func (ps *PostgresStorage) TransactionHistory(ctx context.Context, walletAddress, ipAddress string, limit int) ([]*models.TransactionRecord, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, wallet_address, normalized_amount, tx_hash, status, error_message,
		       country, ip_address, user_agent, response_time_ms, created_at, updated_at
		FROM transactions
		WHERE ($1 = '' OR wallet_address = $1)
		  AND ($2 = '' OR ip_address = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		walletAddress, ipAddress, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// WalletActivity returns records for a wallet since the given time.
func (ps *PostgresStorage) WalletActivity(ctx context.Context, walletAddress string, since time.Time) ([]*models.TransactionRecord, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, wallet_address, normalized_amount, tx_hash, status, error_message,
		       country, ip_address, user_agent, response_time_ms, created_at, updated_at
		FROM transactions
		WHERE wallet_address = $1 AND created_at >= $2
		ORDER BY created_at DESC`,
		walletAddress, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet activity: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// TransactionStats aggregates counts and volume per status.
func (ps *PostgresStorage) TransactionStats(ctx context.Context, since time.Time) ([]models.StatusStat, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(normalized_amount), 0)
		FROM transactions
		WHERE created_at >= $1
		GROUP BY status
		ORDER BY status`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []models.StatusStat
	for rows.Next() {
		var s models.StatusStat
		var status string
		if err := rows.Scan(&status, &s.Count, &s.TotalAmount); err != nil {
			return nil, fmt.Errorf("failed to scan stat row: %w", err)
		}
		s.Status = models.TransactionStatus(status)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// TopSources ranks requesting IPs by activity.
func (ps *PostgresStorage) TopSources(ctx context.Context, since time.Time, limit int) ([]models.SourceStat, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT ip_address,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM transactions
		WHERE created_at >= $1
		GROUP BY ip_address
		ORDER BY COUNT(*) DESC, ip_address
		LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query top sources: %w", err)
	}
	defer rows.Close()

	var stats []models.SourceStat
	for rows.Next() {
		var s models.SourceStat
		if err := rows.Scan(&s.IPAddress, &s.Count, &s.SuccessCount, &s.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GeographicDistribution aggregates activity per country.
func (ps *PostgresStorage) GeographicDistribution(ctx context.Context, since time.Time) ([]models.CountryStat, error) {
	return ps.countryStats(ctx, since, 0)
}

// TopCountries ranks countries by activity with share of total traffic.
func (ps *PostgresStorage) TopCountries(ctx context.Context, since time.Time, limit int) (*models.TopCountries, error) {
	var total int64
	err := ps.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE created_at >= $1 AND country <> ''`,
		since,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	result := &models.TopCountries{
		Countries:         []models.CountryStat{},
		TotalTransactions: total,
		StartDate:         since,
		EndDate:           time.Now().UTC(),
	}
	if total == 0 {
		return result, nil
	}

	stats, err := ps.countryStats(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].Percentage = roundPercent(stats[i].Count, total)
	}
	result.Countries = stats
	return result, nil
}

// HourlyDistribution counts transactions per UTC hour of day.
func (ps *PostgresStorage) HourlyDistribution(ctx context.Context, since time.Time) ([]models.HourlyStat, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC')::int AS hour,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM transactions
		WHERE created_at >= $1
		GROUP BY hour
		ORDER BY hour`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly distribution: %w", err)
	}
	defer rows.Close()

	var stats []models.HourlyStat
	for rows.Next() {
		var s models.HourlyStat
		if err := rows.Scan(&s.Hour, &s.Count, &s.SuccessCount, &s.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan hourly row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PerformanceStats summarizes the response-time distribution.
func (ps *PostgresStorage) PerformanceStats(ctx context.Context, since time.Time) (*models.PerformanceStats, error) {
	var stats models.PerformanceStats
	err := ps.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(response_time_ms), 0),
		       COALESCE(MIN(response_time_ms), 0),
		       COALESCE(MAX(response_time_ms), 0),
		       COALESCE(PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY response_time_ms), 0),
		       COALESCE(PERCENTILE_CONT(0.9) WITHIN GROUP (ORDER BY response_time_ms), 0),
		       COALESCE(PERCENTILE_CONT(0.99) WITHIN GROUP (ORDER BY response_time_ms), 0)
		FROM transactions
		WHERE created_at >= $1`,
		since,
	).Scan(
		&stats.TotalRequests, &stats.AvgResponseTime,
		&stats.MinResponseTime, &stats.MaxResponseTime,
		&stats.P50ResponseTime, &stats.P90ResponseTime, &stats.P99ResponseTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance stats: %w", err)
	}
	if stats.TotalRequests == 0 {
		return nil, ErrNotFound
	}
	return &stats, nil
}

// CreateSystemSetting stores the singleton configuration. The unique index on
// the singleton column rejects a second row.
func (ps *PostgresStorage) CreateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	id := setting.ID
	if id == "" {
		id = models.NewRecordID()
	}
	now := time.Now().UTC()

	_, err := ps.pool.Exec(ctx, `
		INSERT INTO system_settings (
			id, faucet_amount, limit_per_ip, limit_per_wallet, ttl_per_ip,
			ttl_per_wallet, faucet_enabled, rate_limit_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		id, setting.FaucetAmount, setting.LimitPerIP, setting.LimitPerWalletAddress,
		setting.TTLPerIP, setting.TTLPerWalletAddress,
		setting.FaucetEnabled, setting.RateLimitEnabled, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create system setting: %w", err)
	}
	return nil
}

// GetSystemSetting returns the singleton configuration.
func (ps *PostgresStorage) GetSystemSetting(ctx context.Context) (*models.SystemSetting, error) {
	var s models.SystemSetting
	err := ps.pool.QueryRow(ctx, `
		SELECT id, faucet_amount, limit_per_ip, limit_per_wallet, ttl_per_ip,
		       ttl_per_wallet, faucet_enabled, rate_limit_enabled, created_at, updated_at
		FROM system_settings
		LIMIT 1`,
	).Scan(
		&s.ID, &s.FaucetAmount, &s.LimitPerIP, &s.LimitPerWalletAddress,
		&s.TTLPerIP, &s.TTLPerWalletAddress,
		&s.FaucetEnabled, &s.RateLimitEnabled, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get system setting: %w", err)
	}
	return &s, nil
}

// UpdateSystemSetting replaces the singleton configuration.
func (ps *PostgresStorage) UpdateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	tag, err := ps.pool.Exec(ctx, `
		UPDATE system_settings SET
			faucet_amount = $1, limit_per_ip = $2, limit_per_wallet = $3,
			ttl_per_ip = $4, ttl_per_wallet = $5, faucet_enabled = $6,
			rate_limit_enabled = $7, updated_at = $8`,
		setting.FaucetAmount, setting.LimitPerIP, setting.LimitPerWalletAddress,
		setting.TTLPerIP, setting.TTLPerWalletAddress,
		setting.FaucetEnabled, setting.RateLimitEnabled, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update system setting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAPIKey stores a new API key.
func (ps *PostgresStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	_, err = ps.pool.Exec(ctx, `
		INSERT INTO api_keys (id, name, key_hash, prefix, permissions, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.Name, key.KeyHash, key.Prefix, perms, key.Enabled, key.CreatedAt, key.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash retrieves an API key by its SHA-256 hash.
func (ps *PostgresStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	var perms []byte
	err := ps.pool.QueryRow(ctx, `
		SELECT id, name, key_hash, prefix, permissions, enabled, created_at, updated_at
		FROM api_keys WHERE key_hash = $1`,
		hash,
	).Scan(&key.ID, &key.Name, &key.KeyHash, &key.Prefix, &perms, &key.Enabled, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if err := json.Unmarshal(perms, &key.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return &key, nil
}

// Ping verifies the storage backend is reachable and operational.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the storage connection.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func (ps *PostgresStorage) countryStats(ctx context.Context, since time.Time, limit int) ([]models.CountryStat, error) {
	query := `
		SELECT country,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM transactions
		WHERE created_at >= $1 AND country <> ''
		GROUP BY country
		ORDER BY COUNT(*) DESC, country`
	args := []any{since}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query country stats: %w", err)
	}
	defer rows.Close()

	var stats []models.CountryStat
	for rows.Next() {
		var s models.CountryStat
		if err := rows.Scan(&s.Country, &s.Count, &s.SuccessCount, &s.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan country row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanTransactions(rows pgx.Rows) ([]*models.TransactionRecord, error) {
	records := []*models.TransactionRecord{}
	for rows.Next() {
		var rec models.TransactionRecord
		var txHash, errMsg pgtype.Text
		if err := rows.Scan(
			&rec.ID, &rec.WalletAddress, &rec.NormalizedAmount, &txHash, &rec.Status,
			&errMsg, &rec.Country, &rec.IPAddress, &rec.UserAgent, &rec.ResponseTime,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		rec.TxHash = txHash.String
		rec.ErrorMessage = errMsg.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func nullableText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
