package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"faucet/internal/models"
)

// Timestamps are stored as unix milliseconds so the schema stays independent
// of driver-specific time formats.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	normalized_amount REAL NOT NULL,
	tx_hash TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL,
	ip_address TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	response_time_ms INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions (wallet_address);
CREATE INDEX IF NOT EXISTS idx_transactions_ip ON transactions (ip_address);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions (created_at);

CREATE TABLE IF NOT EXISTS system_settings (
	id TEXT PRIMARY KEY,
	singleton INTEGER NOT NULL DEFAULT 1 UNIQUE,
	faucet_amount REAL NOT NULL,
	limit_per_ip INTEGER NOT NULL,
	limit_per_wallet INTEGER NOT NULL,
	ttl_per_ip INTEGER NOT NULL,
	ttl_per_wallet INTEGER NOT NULL,
	faucet_enabled INTEGER NOT NULL,
	rate_limit_enabled INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	key_hash TEXT NOT NULL UNIQUE,
	prefix TEXT NOT NULL,
	permissions TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLiteStorage implements the Storage interface using SQLite. Suited for
// single-node deployments without an external database.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance and ensures the
// schema exists.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// AppendTransaction persists a disbursement record.
func (ss *SQLiteStorage) AppendTransaction(ctx context.Context, record *models.TransactionRecord) (string, error) {
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

	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, wallet_address, normalized_amount, tx_hash, status, error_message,
			country, ip_address, user_agent, response_time_ms, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, record.WalletAddress, record.NormalizedAmount, record.TxHash,
		string(record.Status), record.ErrorMessage, record.Country,
		record.IPAddress, record.UserAgent, record.ResponseTime,
		createdAt.UnixMilli(), createdAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to append transaction: %w", err)
	}
	return id, nil
}

// TransactionHistory returns recent records filtered by wallet and/or IP.
func (ss *SQLiteStorage) TransactionHistory(ctx context.Context, walletAddress, ipAddress string, limit int) ([]*models.TransactionRecord, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT id, wallet_address, normalized_amount, tx_hash, status, error_message,
		       country, ip_address, user_agent, response_time_ms, created_at, updated_at
		FROM transactions
		WHERE (? = '' OR wallet_address = ?)
		  AND (? = '' OR ip_address = ?)
		ORDER BY created_at DESC
		LIMIT ?`,
		walletAddress, walletAddress, ipAddress, ipAddress, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanSQLiteTransactions(rows)
}

// WalletActivity returns records for a wallet since the given time.
func (ss *SQLiteStorage) WalletActivity(ctx context.Context, walletAddress string, since time.Time) ([]*models.TransactionRecord, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT id, wallet_address, normalized_amount, tx_hash, status, error_message,
		       country, ip_address, user_agent, response_time_ms, created_at, updated_at
		FROM transactions
		WHERE wallet_address = ? AND created_at >= ?
		ORDER BY created_at DESC`,
		walletAddress, since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet activity: %w", err)
	}
	defer rows.Close()

	return scanSQLiteTransactions(rows)
}

// TransactionStats aggregates counts and volume per status.
func (ss *SQLiteStorage) TransactionStats(ctx context.Context, since time.Time) ([]models.StatusStat, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(normalized_amount), 0)
		FROM transactions
		WHERE created_at >= ?
		GROUP BY status
		ORDER BY status`,
		since.UnixMilli(),
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
func (ss *SQLiteStorage) TopSources(ctx context.Context, since time.Time, limit int) ([]models.SourceStat, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT ip_address,
		       COUNT(*),
		       SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM transactions
		WHERE created_at >= ?
		GROUP BY ip_address
		ORDER BY COUNT(*) DESC, ip_address
		LIMIT ?`,
		since.UnixMilli(), limit,
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
func (ss *SQLiteStorage) GeographicDistribution(ctx context.Context, since time.Time) ([]models.CountryStat, error) {
	return ss.countryStats(ctx, since, 0)
}

// TopCountries ranks countries by activity with share of total traffic.
func (ss *SQLiteStorage) TopCountries(ctx context.Context, since time.Time, limit int) (*models.TopCountries, error) {
	var total int64
	err := ss.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE created_at >= ? AND country <> ''`,
		since.UnixMilli(),
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

	stats, err := ss.countryStats(ctx, since, limit)
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
func (ss *SQLiteStorage) HourlyDistribution(ctx context.Context, since time.Time) ([]models.HourlyStat, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT (created_at / 3600000) % 24 AS hour,
		       COUNT(*),
		       SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM transactions
		WHERE created_at >= ?
		GROUP BY hour
		ORDER BY hour`,
		since.UnixMilli(),
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

// PerformanceStats summarizes the response-time distribution. SQLite has no
// percentile aggregate, so the quantiles are computed in Go.
func (ss *SQLiteStorage) PerformanceStats(ctx context.Context, since time.Time) (*models.PerformanceStats, error) {
	rows, err := ss.db.QueryContext(ctx,
		`SELECT response_time_ms FROM transactions WHERE created_at >= ?`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query response times: %w", err)
	}
	defer rows.Close()

	var times []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan response time: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, ErrNotFound
	}

	stats := &models.PerformanceStats{
		TotalRequests:   int64(len(times)),
		MinResponseTime: times[0],
		MaxResponseTime: times[0],
	}
	var sum int64
	for _, t := range times {
		sum += t
		if t < stats.MinResponseTime {
			stats.MinResponseTime = t
		}
		if t > stats.MaxResponseTime {
			stats.MaxResponseTime = t
		}
	}
	stats.AvgResponseTime = float64(sum) / float64(len(times))
	stats.P50ResponseTime = percentile(times, 0.50)
	stats.P90ResponseTime = percentile(times, 0.90)
	stats.P99ResponseTime = percentile(times, 0.99)
	return stats, nil
}

// CreateSystemSetting stores the singleton configuration. The unique singleton
// column rejects a second row.
func (ss *SQLiteStorage) CreateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	id := setting.ID
	if id == "" {
		id = models.NewRecordID()
	}
	now := time.Now().UTC().UnixMilli()

	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO system_settings (
			id, faucet_amount, limit_per_ip, limit_per_wallet, ttl_per_ip,
			ttl_per_wallet, faucet_enabled, rate_limit_enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, setting.FaucetAmount, setting.LimitPerIP, setting.LimitPerWalletAddress,
		setting.TTLPerIP, setting.TTLPerWalletAddress,
		setting.FaucetEnabled, setting.RateLimitEnabled, now, now,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create system setting: %w", err)
	}
	return nil
}

// GetSystemSetting returns the singleton configuration.
func (ss *SQLiteStorage) GetSystemSetting(ctx context.Context) (*models.SystemSetting, error) {
	var s models.SystemSetting
	var createdAt, updatedAt int64
	err := ss.db.QueryRowContext(ctx, `
		SELECT id, faucet_amount, limit_per_ip, limit_per_wallet, ttl_per_ip,
		       ttl_per_wallet, faucet_enabled, rate_limit_enabled, created_at, updated_at
		FROM system_settings
		LIMIT 1`,
	).Scan(
		&s.ID, &s.FaucetAmount, &s.LimitPerIP, &s.LimitPerWalletAddress,
		&s.TTLPerIP, &s.TTLPerWalletAddress,
		&s.FaucetEnabled, &s.RateLimitEnabled, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get system setting: %w", err)
	}
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	s.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &s, nil
}

// UpdateSystemSetting replaces the singleton configuration.
func (ss *SQLiteStorage) UpdateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	res, err := ss.db.ExecContext(ctx, `
		UPDATE system_settings SET
			faucet_amount = ?, limit_per_ip = ?, limit_per_wallet = ?,
			ttl_per_ip = ?, ttl_per_wallet = ?, faucet_enabled = ?,
			rate_limit_enabled = ?, updated_at = ?`,
		setting.FaucetAmount, setting.LimitPerIP, setting.LimitPerWalletAddress,
		setting.TTLPerIP, setting.TTLPerWalletAddress,
		setting.FaucetEnabled, setting.RateLimitEnabled, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to update system setting: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAPIKey stores a new API key.
func (ss *SQLiteStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	_, err = ss.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, key_hash, prefix, permissions, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Name, key.KeyHash, key.Prefix, string(perms), key.Enabled,
		key.CreatedAt.UnixMilli(), key.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash retrieves an API key by its SHA-256 hash.
func (ss *SQLiteStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	var perms string
	var createdAt, updatedAt int64
	err := ss.db.QueryRowContext(ctx, `
		SELECT id, name, key_hash, prefix, permissions, enabled, created_at, updated_at
		FROM api_keys WHERE key_hash = ?`,
		hash,
	).Scan(&key.ID, &key.Name, &key.KeyHash, &key.Prefix, &perms, &key.Enabled, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if err := json.Unmarshal([]byte(perms), &key.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	key.CreatedAt = time.UnixMilli(createdAt).UTC()
	key.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &key, nil
}

// Ping verifies the storage backend is reachable and operational.
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection.
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

func (ss *SQLiteStorage) countryStats(ctx context.Context, since time.Time, limit int) ([]models.CountryStat, error) {
	query := `
		SELECT country,
		       COUNT(*),
		       SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM transactions
		WHERE created_at >= ? AND country <> ''
		GROUP BY country
		ORDER BY COUNT(*) DESC, country`
	args := []any{since.UnixMilli()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ss.db.QueryContext(ctx, query, args...)
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

func scanSQLiteTransactions(rows *sql.Rows) ([]*models.TransactionRecord, error) {
	records := []*models.TransactionRecord{}
	for rows.Next() {
		var rec models.TransactionRecord
		var status string
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&rec.ID, &rec.WalletAddress, &rec.NormalizedAmount, &rec.TxHash, &status,
			&rec.ErrorMessage, &rec.Country, &rec.IPAddress, &rec.UserAgent,
			&rec.ResponseTime, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		rec.Status = models.TransactionStatus(status)
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
