// Package analytics exposes read-only reporting over the transaction log:
// status breakdowns, top request sources, geographic and hourly distributions,
// and response-time percentiles. The heavy lifting lives in the storage
// backends; this layer normalizes query windows and defaults.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"faucet/internal/models"
	"faucet/internal/storage"
)

// Query defaults. Windows are expressed in whole days ending now.
const (
	DefaultWindowDays         = 7
	DefaultWalletActivityDays = 30
	DefaultTopLimit           = 10
	DefaultHistoryLimit       = 50
	MaxHistoryLimit           = 500
)

// Service answers analytics queries over stored transaction records.
type Service struct {
	storage storage.Storage
}

// NewService creates a new analytics service backed by the given storage.
func NewService(store storage.Storage) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Service{storage: store}, nil
}

// TransactionStats returns per-status counts and volume for the window.
func (s *Service) TransactionStats(ctx context.Context, days int) ([]models.StatusStat, error) {
	return s.storage.TransactionStats(ctx, windowStart(days, DefaultWindowDays))
}

// TopSources returns the most active requesting IPs for the window.
func (s *Service) TopSources(ctx context.Context, days, limit int) ([]models.SourceStat, error) {
	return s.storage.TopSources(ctx, windowStart(days, DefaultWindowDays), normalizeLimit(limit, DefaultTopLimit))
}

// GeographicDistribution returns per-country activity for the window.
func (s *Service) GeographicDistribution(ctx context.Context, days int) ([]models.CountryStat, error) {
	return s.storage.GeographicDistribution(ctx, windowStart(days, DefaultWindowDays))
}

// TopCountries returns the most active countries with their share of traffic.
func (s *Service) TopCountries(ctx context.Context, days, limit int) (*models.TopCountries, error) {
	return s.storage.TopCountries(ctx, windowStart(days, DefaultWindowDays), normalizeLimit(limit, DefaultTopLimit))
}

// HourlyDistribution returns per-UTC-hour activity for the window.
func (s *Service) HourlyDistribution(ctx context.Context, days int) ([]models.HourlyStat, error) {
	return s.storage.HourlyDistribution(ctx, windowStart(days, DefaultWindowDays))
}

// PerformanceStats returns the response-time distribution for the window.
// When the window holds no records an empty summary is returned rather than
// an error.
func (s *Service) PerformanceStats(ctx context.Context, days int) (*models.PerformanceStats, error) {
	stats, err := s.storage.PerformanceStats(ctx, windowStart(days, DefaultWindowDays))
	if err != nil {
		if err == storage.ErrNotFound {
			return &models.PerformanceStats{}, nil
		}
		return nil, err
	}
	return stats, nil
}

// History returns recent records, optionally filtered by wallet address
// and/or IP address.
func (s *Service) History(ctx context.Context, walletAddress, ipAddress string, limit int) ([]*models.TransactionRecord, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if walletAddress != "" && !models.IsValidWalletAddress(walletAddress) {
		return nil, fmt.Errorf("invalid wallet address filter")
	}

	limit = normalizeLimit(limit, DefaultHistoryLimit)
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.storage.TransactionHistory(ctx, walletAddress, strings.TrimSpace(ipAddress), limit)
}

// WalletActivity returns all records for one wallet within the window.
func (s *Service) WalletActivity(ctx context.Context, walletAddress string, days int) ([]*models.TransactionRecord, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if !models.IsValidWalletAddress(walletAddress) {
		return nil, fmt.Errorf("invalid wallet address")
	}
	return s.storage.WalletActivity(ctx, walletAddress, windowStart(days, DefaultWalletActivityDays))
}

func windowStart(days, fallback int) time.Time {
	if days <= 0 {
		days = fallback
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
