package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faucet/internal/models"
)

const testSeed = "0101010101010101010101010101010101010101010101010101010101010101"

func testLedgerConfig(rpcURL string) models.LedgerConfig {
	return models.LedgerConfig{
		RPCURL:          rpcURL,
		SecretKey:       testSeed,
		RequestTimeout:  5 * time.Second,
		TransfersPerSec: 100,
		TransferBurst:   10,
	}
}

// rpcStub routes JSON-RPC methods to canned result payloads.
func rpcStub(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		require.True(t, ok, "unexpected rpc method %s", req.Method)

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewSuiClient_InvalidSecretKey(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"too short", "abcdef"},
		{"not hex or base64", "zzzz!!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testLedgerConfig("http://localhost:1")
			cfg.SecretKey = tt.secret
			_, err := NewSuiClient(cfg)
			assert.Error(t, err)
		})
	}
}

func TestSuiClient_Address(t *testing.T) {
	client, err := NewSuiClient(testLedgerConfig("http://localhost:1"))
	require.NoError(t, err)

	address := client.Address()
	assert.True(t, strings.HasPrefix(address, "0x"))
	assert.Len(t, address, 66)

	// Same seed derives the same address.
	other, err := NewSuiClient(testLedgerConfig("http://localhost:1"))
	require.NoError(t, err)
	assert.Equal(t, address, other.Address())
}

func TestSuiClient_Balance(t *testing.T) {
	server := rpcStub(t, map[string]any{
		"suix_getBalance": map[string]any{"totalBalance": "2500000000"},
	})
	defer server.Close()

	client, err := NewSuiClient(testLedgerConfig(server.URL))
	require.NoError(t, err)

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.5, balance, 1e-9)
}

func TestSuiClient_Balance_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int64 `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32602, "message": "invalid params"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client, err := NewSuiClient(testLedgerConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Balance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestSuiClient_Transfer(t *testing.T) {
	var executeParams []json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64             `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result any
		switch req.Method {
		case "suix_getCoins":
			result = map[string]any{"data": []map[string]any{
				{"coinObjectId": "0xc0ffee", "balance": "5000000000"},
			}}
		case "unsafe_transferSui":
			result = map[string]any{"txBytes": "dGVzdC10eC1ieXRlcw=="}
		case "sui_executeTransactionBlock":
			executeParams = req.Params
			result = map[string]any{
				"digest":  "9WzSGmCgjkBpcn6F9MbHT8BrnYuqzBDAvTXC2AU7gDQr",
				"effects": map[string]any{"status": map[string]any{"status": "success"}},
			}
		default:
			t.Fatalf("unexpected rpc method %s", req.Method)
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client, err := NewSuiClient(testLedgerConfig(server.URL))
	require.NoError(t, err)

	digest, err := client.Transfer(context.Background(), "0xrecipient", 1.0)
	require.NoError(t, err)
	assert.Equal(t, "9WzSGmCgjkBpcn6F9MbHT8BrnYuqzBDAvTXC2AU7gDQr", digest)

	// The execute call carries the tx bytes and one serialized signature.
	require.Len(t, executeParams, 4)
	var signatures []string
	require.NoError(t, json.Unmarshal(executeParams[1], &signatures))
	require.Len(t, signatures, 1)
	assert.NotEmpty(t, signatures[0])
}

func TestSuiClient_Transfer_ChainRejection(t *testing.T) {
	server := rpcStub(t, map[string]any{
		"suix_getCoins": map[string]any{"data": []map[string]any{
			{"coinObjectId": "0xc0ffee", "balance": "5000000000"},
		}},
		"unsafe_transferSui": map[string]any{"txBytes": "dGVzdC10eC1ieXRlcw=="},
		"sui_executeTransactionBlock": map[string]any{
			"digest":  "abc",
			"effects": map[string]any{"status": map[string]any{"status": "failure", "error": "InsufficientGas"}},
		},
	})
	defer server.Close()

	client, err := NewSuiClient(testLedgerConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Transfer(context.Background(), "0xrecipient", 1.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InsufficientGas")
}

func TestSuiClient_Transfer_NoCoinLargeEnough(t *testing.T) {
	server := rpcStub(t, map[string]any{
		"suix_getCoins": map[string]any{"data": []map[string]any{
			{"coinObjectId": "0xc0ffee", "balance": "100"},
		}},
	})
	defer server.Close()

	client, err := NewSuiClient(testLedgerConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Transfer(context.Background(), "0xrecipient", 1.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no coin")
}

func TestSuiClient_Transfer_ContextCancelled(t *testing.T) {
	client, err := NewSuiClient(testLedgerConfig("http://localhost:1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Transfer(ctx, "0xrecipient", 1.0)
	assert.Error(t, err)
}
