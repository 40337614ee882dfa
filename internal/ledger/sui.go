package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	"faucet/internal/models"
)

const (
	// mistPerSui is the number of base units in one SUI.
	mistPerSui = 1_000_000_000

	suiCoinType = "0x2::sui::SUI"

	// ed25519SchemeFlag prefixes ed25519 public keys in addresses and
	// serialized signatures.
	ed25519SchemeFlag = 0x00

	defaultGasBudget = 10_000_000 // MIST
)

// suiSigningIntent is the intent prefix for transaction data: scope
// TransactionData, version V0, app id Sui.
var suiSigningIntent = []byte{0, 0, 0}

// SuiClient talks JSON-RPC to a Sui fullnode and signs transactions with a
// local ed25519 key. Transfer submissions are paced with a token bucket since
// all of them spend from a single hot wallet.
type SuiClient struct {
	rpcURL     string
	httpClient *http.Client
	privateKey ed25519.PrivateKey
	address    string
	limiter    *rate.Limiter
	gasBudget  uint64
	requestID  atomic.Int64
}

var _ Client = (*SuiClient)(nil)

// NewSuiClient creates a client from the ledger configuration. The secret key
// is a 32-byte ed25519 seed, hex or base64 encoded.
func NewSuiClient(cfg models.LedgerConfig) (*SuiClient, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("rpc url is required")
	}
	seed, err := decodeSeed(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	privateKey := ed25519.NewKeyFromSeed(seed)

	burst := cfg.TransferBurst
	if burst <= 0 {
		burst = 1
	}

	return &SuiClient{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		privateKey: privateKey,
		address:    deriveAddress(privateKey.Public().(ed25519.PublicKey)),
		limiter:    rate.NewLimiter(rate.Limit(cfg.TransfersPerSec), burst),
		gasBudget:  defaultGasBudget,
	}, nil
}

// Address returns the funding wallet address derived from the signing key.
func (c *SuiClient) Address() string {
	return c.address
}

// Balance returns the funding wallet balance in whole SUI.
func (c *SuiClient) Balance(ctx context.Context) (float64, error) {
	var result struct {
		TotalBalance string `json:"totalBalance"`
	}
	if err := c.call(ctx, "suix_getBalance", []any{c.address, suiCoinType}, &result); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	mist, err := strconv.ParseUint(result.TotalBalance, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", result.TotalBalance, err)
	}
	return float64(mist) / mistPerSui, nil
}

// Transfer sends amount whole SUI to the recipient and returns the
// transaction digest. The node builds the transaction bytes, the client signs
// them with the transaction-data intent and submits for execution.
func (c *SuiClient) Transfer(ctx context.Context, recipient string, amount float64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("transfer pacing: %w", err)
	}

	mist := uint64(math.Round(amount * mistPerSui))
	if mist == 0 {
		return "", fmt.Errorf("amount %v is below one base unit", amount)
	}

	coinID, err := c.pickGasCoin(ctx, mist+c.gasBudget)
	if err != nil {
		return "", err
	}

	var unsigned struct {
		TxBytes string `json:"txBytes"`
	}
	err = c.call(ctx, "unsafe_transferSui", []any{
		c.address,
		coinID,
		strconv.FormatUint(c.gasBudget, 10),
		recipient,
		strconv.FormatUint(mist, 10),
	}, &unsigned)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}

	signature, err := c.signTransaction(unsigned.TxBytes)
	if err != nil {
		return "", err
	}

	var executed struct {
		Digest  string `json:"digest"`
		Effects struct {
			Status struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"status"`
		} `json:"effects"`
	}
	err = c.call(ctx, "sui_executeTransactionBlock", []any{
		unsigned.TxBytes,
		[]string{signature},
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution",
	}, &executed)
	if err != nil {
		return "", fmt.Errorf("execute transfer: %w", err)
	}
	if s := executed.Effects.Status; s.Status != "" && s.Status != "success" {
		return "", fmt.Errorf("transfer rejected on chain: %s", s.Error)
	}

	slog.Debug("transfer executed", "digest", executed.Digest, "recipient", recipient, "mist", mist)
	return executed.Digest, nil
}

// pickGasCoin returns a SUI coin owned by the faucet wallet that covers the
// required amount plus gas.
func (c *SuiClient) pickGasCoin(ctx context.Context, required uint64) (string, error) {
	var result struct {
		Data []struct {
			CoinObjectID string `json:"coinObjectId"`
			Balance      string `json:"balance"`
		} `json:"data"`
	}
	if err := c.call(ctx, "suix_getCoins", []any{c.address, suiCoinType}, &result); err != nil {
		return "", fmt.Errorf("list coins: %w", err)
	}
	for _, coin := range result.Data {
		balance, err := strconv.ParseUint(coin.Balance, 10, 64)
		if err != nil {
			continue
		}
		if balance >= required {
			return coin.CoinObjectID, nil
		}
	}
	return "", fmt.Errorf("no coin with at least %d mist available", required)
}

// signTransaction produces the serialized signature for base64 transaction
// bytes: ed25519 over blake2b-256(intent || txBytes), then
// base64(flag || signature || publicKey).
func (c *SuiClient) signTransaction(txBytesB64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return "", fmt.Errorf("decode tx bytes: %w", err)
	}

	message := append(append([]byte{}, suiSigningIntent...), txBytes...)
	digest := blake2b.Sum256(message)
	signature := ed25519.Sign(c.privateKey, digest[:])

	publicKey := c.privateKey.Public().(ed25519.PublicKey)
	serialized := make([]byte, 0, 1+len(signature)+len(publicKey))
	serialized = append(serialized, ed25519SchemeFlag)
	serialized = append(serialized, signature...)
	serialized = append(serialized, publicKey...)
	return base64.StdEncoding.EncodeToString(serialized), nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *SuiClient) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// deriveAddress computes the Sui address for an ed25519 public key:
// blake2b-256 over the scheme flag followed by the key bytes.
func deriveAddress(publicKey ed25519.PublicKey) string {
	payload := make([]byte, 0, 1+len(publicKey))
	payload = append(payload, ed25519SchemeFlag)
	payload = append(payload, publicKey...)
	digest := blake2b.Sum256(payload)
	return "0x" + hex.EncodeToString(digest[:])
}

func decodeSeed(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("secret key is empty")
	}
	if seed, err := hex.DecodeString(strings.TrimPrefix(secret, "0x")); err == nil && len(seed) == ed25519.SeedSize {
		return seed, nil
	}
	if seed, err := base64.StdEncoding.DecodeString(secret); err == nil && len(seed) == ed25519.SeedSize {
		return seed, nil
	}
	return nil, fmt.Errorf("expected %d-byte hex or base64 ed25519 seed", ed25519.SeedSize)
}
