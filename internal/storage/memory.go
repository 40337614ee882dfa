package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"faucet/internal/models"
)

// MemoryStorage implements the Storage interface using in-memory data
// structures. This provider is ideal for development and testing; data is
// lost on restart.
type MemoryStorage struct {
	mu           sync.RWMutex
	transactions []*models.TransactionRecord
	setting      *models.SystemSetting
	apiKeys      map[string]*models.APIKey // keyed by hash
}

// NewMemoryStorage creates a new memory-based storage instance.
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		apiKeys: make(map[string]*models.APIKey),
	}, nil
}

// AppendTransaction persists a disbursement record.
func (m *MemoryStorage) AppendTransaction(ctx context.Context, record *models.TransactionRecord) (string, error) {
	if err := record.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Store a copy so callers cannot mutate the log afterwards
	rec := *record
	if rec.ID == "" {
		rec.ID = models.NewRecordID()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	m.transactions = append(m.transactions, &rec)

	return rec.ID, nil
}

// TransactionHistory returns recent records filtered by wallet and/or IP.
func (m *MemoryStorage) TransactionHistory(ctx context.Context, walletAddress, ipAddress string, limit int) ([]*models.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.TransactionRecord
	for _, rec := range m.transactions {
		if walletAddress != "" && rec.WalletAddress != walletAddress {
			continue
		}
		if ipAddress != "" && rec.IPAddress != ipAddress {
			continue
		}
		recCopy := *rec
		result = append(result, &recCopy)
	}

	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	if result == nil {
		result = []*models.TransactionRecord{}
	}
	return result, nil
}

// WalletActivity returns records for a wallet since the given time.
func (m *MemoryStorage) WalletActivity(ctx context.Context, walletAddress string, since time.Time) ([]*models.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*models.TransactionRecord{}
	for _, rec := range m.transactions {
		if rec.WalletAddress != walletAddress || rec.CreatedAt.Before(since) {
			continue
		}
		recCopy := *rec
		result = append(result, &recCopy)
	}

	sortNewestFirst(result)
	return result, nil
}

// TransactionStats aggregates counts and volume per status.
func (m *MemoryStorage) TransactionStats(ctx context.Context, since time.Time) ([]models.StatusStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStatus := make(map[models.TransactionStatus]*models.StatusStat)
	for _, rec := range m.inWindow(since) {
		stat, ok := byStatus[rec.Status]
		if !ok {
			stat = &models.StatusStat{Status: rec.Status}
			byStatus[rec.Status] = stat
		}
		stat.Count++
		stat.TotalAmount += rec.NormalizedAmount
	}

	result := make([]models.StatusStat, 0, len(byStatus))
	for _, stat := range byStatus {
		result = append(result, *stat)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Status < result[j].Status })
	return result, nil
}

// TopSources ranks requesting IPs by activity.
func (m *MemoryStorage) TopSources(ctx context.Context, since time.Time, limit int) ([]models.SourceStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byIP := make(map[string]*models.SourceStat)
	for _, rec := range m.inWindow(since) {
		stat, ok := byIP[rec.IPAddress]
		if !ok {
			stat = &models.SourceStat{IPAddress: rec.IPAddress}
			byIP[rec.IPAddress] = stat
		}
		stat.Count++
		if rec.Status == models.TransactionSuccess {
			stat.SuccessCount++
		} else {
			stat.FailureCount++
		}
	}

	result := make([]models.SourceStat, 0, len(byIP))
	for _, stat := range byIP {
		result = append(result, *stat)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].IPAddress < result[j].IPAddress
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GeographicDistribution aggregates activity per country.
func (m *MemoryStorage) GeographicDistribution(ctx context.Context, since time.Time) ([]models.CountryStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.countryStats(since, 0), nil
}

// TopCountries ranks countries by activity with share of total traffic.
func (m *MemoryStorage) TopCountries(ctx context.Context, since time.Time, limit int) (*models.TopCountries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.countryStats(since, limit)

	var total int64
	for _, rec := range m.inWindow(since) {
		if rec.Country != "" {
			total++
		}
	}

	for i := range stats {
		stats[i].Percentage = roundPercent(stats[i].Count, total)
	}

	return &models.TopCountries{
		Countries:         stats,
		TotalTransactions: total,
		StartDate:         since,
		EndDate:           time.Now().UTC(),
	}, nil
}

// HourlyDistribution counts transactions per UTC hour of day.
func (m *MemoryStorage) HourlyDistribution(ctx context.Context, since time.Time) ([]models.HourlyStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byHour := make(map[int]*models.HourlyStat)
	for _, rec := range m.inWindow(since) {
		hour := rec.CreatedAt.UTC().Hour()
		stat, ok := byHour[hour]
		if !ok {
			stat = &models.HourlyStat{Hour: hour}
			byHour[hour] = stat
		}
		stat.Count++
		if rec.Status == models.TransactionSuccess {
			stat.SuccessCount++
		} else {
			stat.FailureCount++
		}
	}

	result := make([]models.HourlyStat, 0, len(byHour))
	for _, stat := range byHour {
		result = append(result, *stat)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Hour < result[j].Hour })
	return result, nil
}

// PerformanceStats summarizes the response-time distribution.
func (m *MemoryStorage) PerformanceStats(ctx context.Context, since time.Time) (*models.PerformanceStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var times []int64
	for _, rec := range m.inWindow(since) {
		times = append(times, rec.ResponseTime)
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

// CreateSystemSetting stores the singleton configuration.
func (m *MemoryStorage) CreateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setting != nil {
		return ErrAlreadyExists
	}

	s := *setting
	if s.ID == "" {
		s.ID = models.NewRecordID()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.setting = &s
	return nil
}

// GetSystemSetting returns the singleton configuration.
func (m *MemoryStorage) GetSystemSetting(ctx context.Context) (*models.SystemSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.setting == nil {
		return nil, ErrNotFound
	}
	s := *m.setting
	return &s, nil
}

// UpdateSystemSetting replaces the singleton configuration.
func (m *MemoryStorage) UpdateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setting == nil {
		return ErrNotFound
	}

	s := *setting
	s.ID = m.setting.ID
	s.CreatedAt = m.setting.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	m.setting = &s
	return nil
}

// CreateAPIKey stores a new API key.
func (m *MemoryStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.apiKeys[key.KeyHash]; exists {
		return ErrAlreadyExists
	}
	keyCopy := *key
	m.apiKeys[key.KeyHash] = &keyCopy
	return nil
}

// GetAPIKeyByHash retrieves an API key by its SHA-256 hash.
func (m *MemoryStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, exists := m.apiKeys[hash]
	if !exists {
		return nil, ErrNotFound
	}
	keyCopy := *key
	return &keyCopy, nil
}

// Ping always succeeds for memory storage.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op for memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}

// inWindow returns records created at or after since. Caller must hold a lock.
func (m *MemoryStorage) inWindow(since time.Time) []*models.TransactionRecord {
	var result []*models.TransactionRecord
	for _, rec := range m.transactions {
		if !rec.CreatedAt.Before(since) {
			result = append(result, rec)
		}
	}
	return result
}

// countryStats aggregates per-country stats sorted by count. Caller must hold
// a lock.
func (m *MemoryStorage) countryStats(since time.Time, limit int) []models.CountryStat {
	byCountry := make(map[string]*models.CountryStat)
	for _, rec := range m.inWindow(since) {
		if rec.Country == "" {
			continue
		}
		stat, ok := byCountry[rec.Country]
		if !ok {
			stat = &models.CountryStat{Country: rec.Country}
			byCountry[rec.Country] = stat
		}
		stat.Count++
		if rec.Status == models.TransactionSuccess {
			stat.SuccessCount++
		} else {
			stat.FailureCount++
		}
	}

	result := make([]models.CountryStat, 0, len(byCountry))
	for _, stat := range byCountry {
		result = append(result, *stat)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Country < result[j].Country
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func sortNewestFirst(records []*models.TransactionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[j].CreatedAt.Before(records[i].CreatedAt)
	})
}

func roundPercent(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}
