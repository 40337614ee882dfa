package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faucet/internal/models"
	"faucet/internal/quota"
)

const testWallet = "0xd10d3a3472d074baa16e5e6dba32e4d373e4eb4b6224d66c7bcb4a34c5ec8e64"

type stubSettings struct {
	setting *models.SystemSetting
	err     error
}

func (s *stubSettings) GetSystemSetting(ctx context.Context) (*models.SystemSetting, error) {
	return s.setting, s.err
}

type failingStore struct{}

func (failingStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("store unreachable")
}
func (failingStore) Ping(ctx context.Context) error { return errors.New("store unreachable") }
func (failingStore) Close() error                   { return nil }

func defaultSetting() *models.SystemSetting {
	return &models.SystemSetting{
		FaucetAmount:          1,
		LimitPerIP:            10,
		LimitPerWalletAddress: 10,
		TTLPerIP:              60,
		TTLPerWalletAddress:   60,
		FaucetEnabled:         true,
		RateLimitEnabled:      true,
	}
}

func newTestGuard(t *testing.T, setting *models.SystemSetting) (*Guard, *quota.MemoryStore) {
	t.Helper()
	store := quota.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	guard, err := NewGuard(store, &stubSettings{setting: setting})
	require.NoError(t, err)
	return guard, store
}

func TestNewGuard_RequiresDependencies(t *testing.T) {
	_, err := NewGuard(nil, &stubSettings{})
	assert.Error(t, err)

	store := quota.NewMemoryStore()
	defer store.Close()
	_, err = NewGuard(store, nil)
	assert.Error(t, err)
}

func TestGuard_Admit_RequiresIPAndWallet(t *testing.T) {
	guard, _ := newTestGuard(t, defaultSetting())

	_, err := guard.Admit(context.Background(), "", testWallet)
	assert.Error(t, err)

	_, err = guard.Admit(context.Background(), "10.0.0.1", "")
	assert.Error(t, err)
}

func TestGuard_Admit_UnderLimit(t *testing.T) {
	guard, _ := newTestGuard(t, defaultSetting())

	d, err := guard.Admit(context.Background(), "10.0.0.1", testWallet)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.IPCount)
	assert.Equal(t, int64(1), d.WalletCount)
}

func TestGuard_Admit_LimitIsLastAllowedRequest(t *testing.T) {
	setting := defaultSetting()
	setting.LimitPerWalletAddress = 10
	guard, _ := newTestGuard(t, setting)

	ctx := context.Background()

	// Requests 1..10 from distinct IPs, same wallet: all allowed
	for i := 1; i <= 10; i++ {
		d, err := guard.Admit(ctx, fmt.Sprintf("10.0.0.%d", i), testWallet)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
	}

	// The 11th trips the wallet limit and is still counted
	d, err := guard.Admit(ctx, "10.0.0.99", testWallet)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(11), d.WalletCount)
	assert.True(t, d.RetryAfter > 0)
}

func TestGuard_Admit_DeniedRequestsStillCount(t *testing.T) {
	setting := defaultSetting()
	setting.LimitPerIP = 2
	guard, _ := newTestGuard(t, setting)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := guard.Admit(ctx, "10.0.0.1", testWallet)
		require.NoError(t, err)
	}

	d, err := guard.Admit(ctx, "10.0.0.1", testWallet)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(6), d.IPCount, "every attempt increments, allowed or not")
}

func TestGuard_Admit_ConcurrentExactlyLimitAllowed(t *testing.T) {
	setting := defaultSetting()
	setting.LimitPerWalletAddress = 5
	setting.LimitPerIP = 1000
	guard, _ := newTestGuard(t, setting)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := guard.Admit(context.Background(), fmt.Sprintf("10.1.0.%d", i), testWallet)
			require.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, allowed, "exactly min(N, limit) concurrent calls may be admitted")
}

func TestGuard_Admit_RateLimitDisabled(t *testing.T) {
	setting := defaultSetting()
	setting.RateLimitEnabled = false
	guard, store := newTestGuard(t, setting)

	for i := 0; i < 50; i++ {
		d, err := guard.Admit(context.Background(), "10.0.0.1", testWallet)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	// Disabled limiter must not consume quota
	count, err := store.Increment(context.Background(), ipKeyPrefix+"10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGuard_Admit_FailsOpenOnStoreError(t *testing.T) {
	guard, err := NewGuard(failingStore{}, &stubSettings{setting: defaultSetting()})
	require.NoError(t, err)

	d, err := guard.Admit(context.Background(), "10.0.0.1", testWallet)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "store outage must not block traffic")
}

func TestGuard_Admit_FailsOpenOnSettingsError(t *testing.T) {
	store := quota.NewMemoryStore()
	defer store.Close()
	guard, err := NewGuard(store, &stubSettings{err: errors.New("not found")})
	require.NoError(t, err)

	d, err := guard.Admit(context.Background(), "10.0.0.1", testWallet)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
