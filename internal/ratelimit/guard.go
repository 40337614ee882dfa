// Package ratelimit enforces per-IP and per-wallet request quotas for the
// faucet. It is modeled as an explicit guard invoked at the start of the
// faucet handler rather than as router middleware, so the admission decision
// is a synchronous, typed value the dispatcher can act on.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"faucet/internal/models"
	"faucet/internal/quota"
)

const (
	ipKeyPrefix     = "faucet:ip:"
	walletKeyPrefix = "faucet:wallet:"
)

// SettingsProvider supplies the current faucet configuration snapshot. It is
// consulted on every Admit call so an admin update takes effect immediately.
type SettingsProvider interface {
	GetSystemSetting(ctx context.Context) (*models.SystemSetting, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed     bool
	IPCount     int64
	WalletCount int64
	IPLimit     int
	WalletLimit int
	// RetryAfter approximates how long a denied caller should wait. It is the
	// larger of the two configured windows; the true remainder is not tracked.
	RetryAfter time.Duration
}

// Guard evaluates faucet admission against the quota store.
type Guard struct {
	store    quota.Store
	settings SettingsProvider
}

// NewGuard creates a rate-limit guard.
func NewGuard(store quota.Store, settings SettingsProvider) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings provider is required")
	}
	return &Guard{store: store, settings: settings}, nil
}

// Admit decides whether a disbursement request from the given IP for the given
// wallet may proceed. Both counters are incremented unconditionally before the
// limit check, so a denied request still counts toward future windows and an
// attacker cannot free-ride on rejections.
//
// Quota store failures are swallowed and treated as "not limited": losing
// strict enforcement is preferred over blocking all traffic when the counter
// store is down.
func (g *Guard) Admit(ctx context.Context, ip, walletAddress string) (Decision, error) {
	if ip == "" {
		return Decision{}, fmt.Errorf("ip is required")
	}
	if walletAddress == "" {
		return Decision{}, fmt.Errorf("wallet address is required")
	}

	setting, err := g.settings.GetSystemSetting(ctx)
	if err != nil {
		// Without a config snapshot there are no limits to enforce. Fail open,
		// same as a quota store outage.
		slog.Warn("rate limit check skipped, settings unavailable", "error", err)
		return Decision{Allowed: true}, nil
	}

	if !setting.RateLimitEnabled {
		return Decision{Allowed: true, IPLimit: setting.LimitPerIP, WalletLimit: setting.LimitPerWalletAddress}, nil
	}

	var (
		wg          sync.WaitGroup
		ipCount     int64
		walletCount int64
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		ipCount = g.increment(ctx, ipKeyPrefix+ip, setting.IPWindow())
	}()
	go func() {
		defer wg.Done()
		walletCount = g.increment(ctx, walletKeyPrefix+walletAddress, setting.WalletWindow())
	}()
	wg.Wait()

	d := Decision{
		IPCount:     ipCount,
		WalletCount: walletCount,
		IPLimit:     setting.LimitPerIP,
		WalletLimit: setting.LimitPerWalletAddress,
	}

	// The limit itself is the last allowed request; only counts strictly
	// greater are denied.
	d.Allowed = ipCount <= int64(setting.LimitPerIP) && walletCount <= int64(setting.LimitPerWalletAddress)
	if !d.Allowed {
		d.RetryAfter = maxDuration(setting.IPWindow(), setting.WalletWindow())
	}

	return d, nil
}

// increment bumps one counter, failing open (count 0) if the store errors.
func (g *Guard) increment(ctx context.Context, key string, ttl time.Duration) int64 {
	count, err := g.store.Increment(ctx, key, ttl)
	if err != nil {
		slog.Warn("quota increment failed, failing open", "key", key, "error", err)
		return 0
	}
	return count
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
