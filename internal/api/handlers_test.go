package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faucet/internal/analytics"
	"faucet/internal/events"
	"faucet/internal/faucet"
	"faucet/internal/geo"
	"faucet/internal/models"
	"faucet/internal/quota"
	"faucet/internal/ratelimit"
	"faucet/internal/storage"
)

const testWallet = "0xd10d35f0d9a474b6bf03ca40e38e1a38eb0f1e0d82dbd363a425e9baa8bb2e64"

type fakeLedger struct {
	balance     float64
	balanceErr  error
	txHash      string
	transferErr error
}

func (l *fakeLedger) Address() string { return "0xfaucet" }

func (l *fakeLedger) Balance(context.Context) (float64, error) {
	return l.balance, l.balanceErr
}

func (l *fakeLedger) Transfer(context.Context, string, float64) (string, error) {
	return l.txHash, l.transferErr
}

type testStack struct {
	router *mux.Router
	store  storage.Storage
	ledger *fakeLedger
	config *models.Config
}

func newTestStack(t *testing.T, mutate func(*models.Config)) *testStack {
	t.Helper()

	config := models.NewDefaultConfig()
	if mutate != nil {
		mutate(config)
	}

	store, err := storage.NewMemoryStorage(storage.Config{Type: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	quotaStore := quota.NewMemoryStore()
	t.Cleanup(func() { quotaStore.Close() })

	guard, err := ratelimit.NewGuard(quotaStore, store)
	require.NoError(t, err)

	fakeChain := &fakeLedger{balance: 100, txHash: "9WzSGmCgjkBpcn6F9MbHT8BrnYuqzBDAvTXC2AU7gDQr"}

	faucetService, err := faucet.NewService(store, store, guard, fakeChain, geo.NoopResolver{}, events.NoopPublisher{})
	require.NoError(t, err)

	analyticsService, err := analytics.NewService(store)
	require.NoError(t, err)

	handlers := NewHandlers(faucetService, analyticsService, store, quotaStore, "test")
	return &testStack{
		router: SetupRoutes(handlers, config),
		store:  store,
		ledger: fakeChain,
		config: config,
	}
}

func (ts *testStack) createSetting(t *testing.T, mutate func(*models.SystemSetting)) {
	t.Helper()
	setting := &models.SystemSetting{
		FaucetAmount:          1.5,
		LimitPerIP:            10,
		LimitPerWalletAddress: 10,
		TTLPerIP:              3600,
		TTLPerWalletAddress:   3600,
		FaucetEnabled:         true,
		RateLimitEnabled:      true,
	}
	if mutate != nil {
		mutate(setting)
	}
	require.NoError(t, ts.store.CreateSystemSetting(context.Background(), setting))
}

func (ts *testStack) request(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *models.ErrorResponse {
	t.Helper()
	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	return &errResp
}

func TestDispense_Success(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, nil)

	rec := ts.request(t, "POST", "/api/v1/faucet", map[string]string{"walletAddress": testWallet}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.FaucetResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, ts.ledger.txHash, resp.TxHash)
	assert.Equal(t, testWallet, resp.WalletAddress)
	assert.InDelta(t, 1.5, resp.Amount, 1e-9)

	// The attempt is recorded for analytics.
	history, err := ts.store.TransactionHistory(context.Background(), testWallet, "", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "203.0.113.7", history[0].IPAddress)
	assert.Equal(t, "test-agent", history[0].UserAgent)
}

func TestDispense_InvalidBody(t *testing.T) {
	ts := newTestStack(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/faucet", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispense_InvalidWallet(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, nil)

	rec := ts.request(t, "POST", "/api/v1/faucet", map[string]string{"walletAddress": "0x1234"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrorCodeInvalidRequest, decodeError(t, rec).Code)
}

func TestDispense_FaucetDisabled(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, func(s *models.SystemSetting) { s.FaucetEnabled = false })

	rec := ts.request(t, "POST", "/api/v1/faucet", map[string]string{"walletAddress": testWallet}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, models.ErrorCodeFaucetDisabled, decodeError(t, rec).Code)
}

func TestDispense_RateLimited(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, func(s *models.SystemSetting) {
		s.LimitPerIP = 1
		s.LimitPerWalletAddress = 1
	})

	body := map[string]string{"walletAddress": testWallet}
	rec := ts.request(t, "POST", "/api/v1/faucet", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, "POST", "/api/v1/faucet", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, models.ErrorCodeRateLimitExceeded, decodeError(t, rec).Code)
}

func TestDispense_InsufficientBalance(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, nil)
	ts.ledger.balance = 0.5

	rec := ts.request(t, "POST", "/api/v1/faucet", map[string]string{"walletAddress": testWallet}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, models.ErrorCodeInsufficientBalance, decodeError(t, rec).Code)
}

func TestDispense_TransferFailed(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, nil)
	ts.ledger.transferErr = errors.New("execution failure")

	rec := ts.request(t, "POST", "/api/v1/faucet", map[string]string{"walletAddress": testWallet}, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, models.ErrorCodeTransferFailed, decodeError(t, rec).Code)
}

func TestDispense_MethodNotAllowed(t *testing.T) {
	ts := newTestStack(t, nil)

	rec := ts.request(t, "GET", "/api/v1/faucet", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetAddress(t *testing.T) {
	ts := newTestStack(t, nil)

	rec := ts.request(t, "GET", "/api/v1/address", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AddressResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "0xfaucet", resp.Address)
}

func TestGetBalance(t *testing.T) {
	ts := newTestStack(t, nil)

	rec := ts.request(t, "GET", "/api/v1/balance", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.BalanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.InDelta(t, 100.0, resp.Balance, 1e-9)
}

func TestSystemSetting_CreateOnce(t *testing.T) {
	ts := newTestStack(t, nil)

	body := map[string]any{
		"faucetAmount":          1.0,
		"limitPerIp":            10,
		"limitPerWalletAddress": 10,
		"ttlPerIp":              3600,
		"ttlPerWalletAddress":   3600,
	}

	rec := ts.request(t, "POST", "/api/v1/system-setting", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.SystemSetting
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.FaucetEnabled, "enable flags default to true")

	rec = ts.request(t, "POST", "/api/v1/system-setting", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.ErrorCodeConflict, decodeError(t, rec).Code)
}

func TestSystemSetting_CreateValidation(t *testing.T) {
	ts := newTestStack(t, nil)

	rec := ts.request(t, "POST", "/api/v1/system-setting", map[string]any{"faucetAmount": -1}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemSetting_GetNotConfigured(t *testing.T) {
	ts := newTestStack(t, nil)

	rec := ts.request(t, "GET", "/api/v1/system-setting", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemSetting_Update(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, nil)

	disabled := false
	body := map[string]any{
		"faucetAmount":          2.0,
		"limitPerIp":            5,
		"limitPerWalletAddress": 5,
		"ttlPerIp":              60,
		"ttlPerWalletAddress":   60,
		"isFaucetEnabled":       disabled,
	}
	rec := ts.request(t, "PUT", "/api/v1/system-setting", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated models.SystemSetting
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.False(t, updated.FaucetEnabled)
	assert.InDelta(t, 2.0, updated.FaucetAmount, 1e-9)
}

func TestSystemSetting_UpdateNotConfigured(t *testing.T) {
	ts := newTestStack(t, nil)

	body := map[string]any{
		"faucetAmount":          2.0,
		"limitPerIp":            5,
		"limitPerWalletAddress": 5,
		"ttlPerIp":              60,
		"ttlPerWalletAddress":   60,
	}
	rec := ts.request(t, "PUT", "/api/v1/system-setting", body, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.createSetting(t, nil)

	rec := ts.request(t, "POST", "/api/v1/faucet", map[string]string{"walletAddress": testWallet}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	paths := []string{
		"/api/v1/analytics/stats",
		"/api/v1/analytics/sources?limit=5",
		"/api/v1/analytics/geographic",
		"/api/v1/analytics/countries?days=7",
		"/api/v1/analytics/hourly",
		"/api/v1/analytics/performance",
		"/api/v1/analytics/history",
		"/api/v1/analytics/wallet/" + testWallet,
	}
	for _, path := range paths {
		rec := ts.request(t, "GET", path, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s: %s", path, rec.Body.String())
	}
}

func TestAnalytics_InvalidWalletFilter(t *testing.T) {
	ts := newTestStack(t, nil)

	rec := ts.request(t, "GET", "/api/v1/analytics/history?walletAddress=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(t, "GET", "/api/v1/analytics/wallet/bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestStack(t, nil)

	rec := ts.request(t, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.StatusHealthy, resp.Status)
	assert.Contains(t, resp.Components, "storage")
	assert.Contains(t, resp.Components, "quota")
	assert.Contains(t, resp.Components, "ledger")
}

func TestHealthCheck_DegradedLedger(t *testing.T) {
	ts := newTestStack(t, nil)
	ts.ledger.balanceErr = errors.New("rpc unavailable")

	rec := ts.request(t, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.StatusDegraded, resp.Status)
}

func TestAuth_RequiredForAdminSurface(t *testing.T) {
	ts := newTestStack(t, func(c *models.Config) { c.Security.EnableAuth = true })
	ts.createSetting(t, nil)

	// Faucet surface stays public.
	rec := ts.request(t, "POST", "/api/v1/faucet", map[string]string{"walletAddress": testWallet}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, "GET", "/api/v1/system-setting", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(t, "GET", "/api/v1/analytics/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_PermissionHierarchy(t *testing.T) {
	ts := newTestStack(t, func(c *models.Config) { c.Security.EnableAuth = true })
	ts.createSetting(t, nil)

	readKey := seedAPIKey(t, ts.store, []string{models.PermissionRead})
	adminKey := seedAPIKey(t, ts.store, []string{models.PermissionAdmin})

	// Read key can view the setting but not change it or see analytics.
	rec := ts.request(t, "GET", "/api/v1/system-setting", nil, bearer(readKey))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, "PUT", "/api/v1/system-setting", map[string]any{
		"faucetAmount": 1.0, "limitPerIp": 1, "limitPerWalletAddress": 1,
		"ttlPerIp": 60, "ttlPerWalletAddress": 60,
	}, bearer(readKey))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, "GET", "/api/v1/analytics/stats", nil, bearer(readKey))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin key can do everything.
	rec = ts.request(t, "GET", "/api/v1/analytics/stats", nil, bearer(adminKey))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_InvalidKey(t *testing.T) {
	ts := newTestStack(t, func(c *models.Config) { c.Security.EnableAuth = true })

	rec := ts.request(t, "GET", "/api/v1/system-setting", nil, bearer("fct_bogus"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func seedAPIKey(t *testing.T, store storage.Storage, permissions []string) string {
	t.Helper()
	raw, err := models.GenerateAPIKey()
	require.NoError(t, err)
	key := models.NewAPIKey(models.NewKeyID(), "test key", raw, permissions)
	require.NoError(t, store.CreateAPIKey(context.Background(), key))
	return raw
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": fmt.Sprintf("Bearer %s", token)}
}
