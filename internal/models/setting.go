package models

import (
	"fmt"
	"time"
)

// SystemSetting is the singleton faucet configuration document. At most one
// exists system-wide; it is created once by an administrator and mutated only
// through an explicit update. It is never auto-created.
type SystemSetting struct {
	ID                    string    `json:"id"`
	FaucetAmount          float64   `json:"faucetAmount"` // dispensed per request, in whole tokens
	LimitPerIP            int       `json:"limitPerIp"`
	LimitPerWalletAddress int       `json:"limitPerWalletAddress"`
	TTLPerIP              int       `json:"ttlPerIp"` // seconds
	TTLPerWalletAddress   int       `json:"ttlPerWalletAddress"`
	FaucetEnabled         bool      `json:"isFaucetEnabled"`
	RateLimitEnabled      bool      `json:"isRateLimitEnabled"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// IPWindow returns the per-IP quota window as a duration.
func (s *SystemSetting) IPWindow() time.Duration {
	return time.Duration(s.TTLPerIP) * time.Second
}

// WalletWindow returns the per-wallet quota window as a duration.
func (s *SystemSetting) WalletWindow() time.Duration {
	return time.Duration(s.TTLPerWalletAddress) * time.Second
}

// Validate checks the setting before create or update.
func (s *SystemSetting) Validate() error {
	if s.FaucetAmount <= 0 {
		return fmt.Errorf("faucetAmount must be positive, got %v", s.FaucetAmount)
	}
	if s.LimitPerIP <= 0 {
		return fmt.Errorf("limitPerIp must be positive, got %d", s.LimitPerIP)
	}
	if s.LimitPerWalletAddress <= 0 {
		return fmt.Errorf("limitPerWalletAddress must be positive, got %d", s.LimitPerWalletAddress)
	}
	if s.TTLPerIP <= 0 {
		return fmt.Errorf("ttlPerIp must be positive, got %d", s.TTLPerIP)
	}
	if s.TTLPerWalletAddress <= 0 {
		return fmt.Errorf("ttlPerWalletAddress must be positive, got %d", s.TTLPerWalletAddress)
	}
	return nil
}
