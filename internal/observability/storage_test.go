package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faucet/internal/models"
	"faucet/internal/storage"
	"faucet/internal/version"
)

const testWallet = "0xd10d35f0d9a474b6bf03ca40e38e1a38eb0f1e0d82dbd363a425e9baa8bb2e64"

func setupTestProvider(t *testing.T) *Provider {
	t.Helper()
	metrics := models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090}
	obs := models.ObservabilityConfig{
		ServiceName: "test",
		Tracing: models.TracingConfig{
			Enabled:    true,
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
	}
	provider, err := Setup(metrics, obs, version.Info{Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider
}

func setupMemoryStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewMemoryStorage(storage.Config{Type: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewInstrumentedStorage(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)
	assert.NotNil(t, instrumented)
}

func TestInstrumentedStorage_Ping(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)

	err = instrumented.Ping(context.Background())
	assert.NoError(t, err)
}

func TestInstrumentedStorage_TransactionOperations(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)

	ctx := context.Background()

	record := &models.TransactionRecord{
		WalletAddress:    testWallet,
		NormalizedAmount: 1.0,
		TxHash:           "digest",
		Status:           models.TransactionSuccess,
		Country:          "Germany",
		IPAddress:        "10.0.0.1",
		UserAgent:        "test",
		ResponseTime:     100,
	}
	id, err := instrumented.AppendTransaction(ctx, record)
	assert.NoError(t, err)
	assert.NotEmpty(t, id)

	history, err := instrumented.TransactionHistory(ctx, testWallet, "", 10)
	assert.NoError(t, err)
	assert.Len(t, history, 1)

	since := time.Now().UTC().Add(-time.Hour)

	activity, err := instrumented.WalletActivity(ctx, testWallet, since)
	assert.NoError(t, err)
	assert.Len(t, activity, 1)

	stats, err := instrumented.TransactionStats(ctx, since)
	assert.NoError(t, err)
	assert.Len(t, stats, 1)

	sources, err := instrumented.TopSources(ctx, since, 10)
	assert.NoError(t, err)
	assert.Len(t, sources, 1)

	geographic, err := instrumented.GeographicDistribution(ctx, since)
	assert.NoError(t, err)
	assert.Len(t, geographic, 1)

	countries, err := instrumented.TopCountries(ctx, since, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), countries.TotalTransactions)

	hourly, err := instrumented.HourlyDistribution(ctx, since)
	assert.NoError(t, err)
	assert.Len(t, hourly, 1)

	perf, err := instrumented.PerformanceStats(ctx, since)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), perf.TotalRequests)
}

func TestInstrumentedStorage_SystemSettingOperations(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)

	ctx := context.Background()

	setting := &models.SystemSetting{
		FaucetAmount:          1.0,
		LimitPerIP:            10,
		LimitPerWalletAddress: 10,
		TTLPerIP:              3600,
		TTLPerWalletAddress:   3600,
		FaucetEnabled:         true,
		RateLimitEnabled:      true,
	}
	assert.NoError(t, instrumented.CreateSystemSetting(ctx, setting))

	got, err := instrumented.GetSystemSetting(ctx)
	assert.NoError(t, err)

	got.FaucetEnabled = false
	assert.NoError(t, instrumented.UpdateSystemSetting(ctx, got))
}

func TestInstrumentedStorage_ErrorRecording(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)

	// Missing setting records an error span without breaking the call.
	_, err = instrumented.GetSystemSetting(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInstrumentedStorage_APIKeyMethods(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)
	ctx := context.Background()

	raw, err := models.GenerateAPIKey()
	require.NoError(t, err)
	key := models.NewAPIKey(models.NewKeyID(), "test", raw, []string{models.PermissionRead})

	assert.NoError(t, instrumented.CreateAPIKey(ctx, key))
	_, err = instrumented.GetAPIKeyByHash(ctx, key.KeyHash)
	assert.NoError(t, err)
}

func TestInstrumentedStorage_Close(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)

	err = instrumented.Close()
	assert.NoError(t, err)
}
