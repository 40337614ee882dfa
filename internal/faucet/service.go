// Package faucet implements the disbursement coordinator: the component that
// admits a request past the rate-limit guard, checks the funding source,
// executes the transfer, and always leaves an audit record behind.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"faucet/internal/events"
	"faucet/internal/geo"
	"faucet/internal/ledger"
	"faucet/internal/models"
	"faucet/internal/ratelimit"
	"faucet/internal/storage"
)

// SettingsProvider supplies the current configuration snapshot. It is fetched
// on every dispense call so an admin update takes effect immediately.
type SettingsProvider interface {
	GetSystemSetting(ctx context.Context) (*models.SystemSetting, error)
}

// RecordStore is the append-only audit log the coordinator writes to.
type RecordStore interface {
	AppendTransaction(ctx context.Context, record *models.TransactionRecord) (string, error)
}

// Admitter decides whether a request may proceed to disbursement.
type Admitter interface {
	Admit(ctx context.Context, ip, walletAddress string) (ratelimit.Decision, error)
}

// Service coordinates faucet disbursements.
type Service struct {
	settings SettingsProvider
	records  RecordStore
	guard    Admitter
	ledger   ledger.Client
	geo      geo.Resolver
	events   events.Publisher

	dispensed   metric.Int64Counter
	lostRecords metric.Int64Counter
}

// NewService creates a disbursement coordinator. All collaborators are
// required; use the noop geo resolver and event publisher when those
// integrations are disabled.
func NewService(
	settings SettingsProvider,
	records RecordStore,
	guard Admitter,
	ledgerClient ledger.Client,
	geoResolver geo.Resolver,
	publisher events.Publisher,
) (*Service, error) {
	switch {
	case settings == nil:
		return nil, fmt.Errorf("settings provider is required")
	case records == nil:
		return nil, fmt.Errorf("record store is required")
	case guard == nil:
		return nil, fmt.Errorf("rate limit guard is required")
	case ledgerClient == nil:
		return nil, fmt.Errorf("ledger client is required")
	case geoResolver == nil:
		return nil, fmt.Errorf("geo resolver is required")
	case publisher == nil:
		return nil, fmt.Errorf("event publisher is required")
	}

	meter := otel.Meter("faucet/dispense")

	dispensed, err := meter.Int64Counter(
		"faucet.dispense.attempts",
		metric.WithDescription("Number of disbursement attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	lostRecords, err := meter.Int64Counter(
		"faucet.dispense.lost_audit_records",
		metric.WithDescription("Number of successful transfers whose audit record could not be written"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		settings:    settings,
		records:     records,
		guard:       guard,
		ledger:      ledgerClient,
		geo:         geoResolver,
		events:      publisher,
		dispensed:   dispensed,
		lostRecords: lostRecords,
	}, nil
}

// Dispense sends the configured faucet amount to the requested wallet.
//
// The enabled check runs before the rate-limit guard so a disabled faucet
// consumes no quota. From the balance check onward every outcome, success or
// failure, is written to the transaction log; a disabled faucet or a denied
// admission writes nothing.
func (s *Service) Dispense(ctx context.Context, req *models.FaucetRequest) (*models.FaucetResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, NewInvalidRequestError("invalid faucet request", err)
	}
	req.Normalize()

	setting, err := s.settings.GetSystemSetting(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Never auto-created; an unconfigured faucet cannot dispense.
			slog.Warn("dispense rejected, system setting not configured")
			return nil, NewFaucetDisabledError()
		}
		return nil, NewInternalError("failed to load system setting", err)
	}
	if !setting.FaucetEnabled {
		return nil, NewFaucetDisabledError()
	}

	decision, err := s.guard.Admit(ctx, req.IPAddress, req.WalletAddress)
	if err != nil {
		return nil, NewInvalidRequestError("admission check failed", err)
	}
	if !decision.Allowed {
		slog.Info("request rate limited",
			"walletAddress", req.WalletAddress,
			"ip", req.IPAddress,
			"ipCount", decision.IPCount,
			"walletCount", decision.WalletCount,
		)
		s.dispensed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rate_limited")))
		return nil, NewRateLimitExceededError()
	}

	start := time.Now()

	balance, err := s.ledger.Balance(ctx)
	if err != nil {
		return nil, s.fail(ctx, req, setting, start, NewTransferFailedError(fmt.Errorf("balance check: %w", err)))
	}
	if balance < setting.FaucetAmount {
		return nil, s.fail(ctx, req, setting, start, NewInsufficientBalanceError(balance, setting.FaucetAmount))
	}

	txHash, err := s.ledger.Transfer(ctx, req.WalletAddress, setting.FaucetAmount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("transfer timed out: %w", err)
		}
		return nil, s.fail(ctx, req, setting, start, NewTransferFailedError(err))
	}

	responseTime := time.Since(start).Milliseconds()
	record := s.newRecord(req, setting, responseTime)
	record.TxHash = txHash
	record.Status = models.TransactionSuccess

	if _, err := s.records.AppendTransaction(ctx, record); err != nil {
		// The funds have left the wallet; this attempt now has no audit trail.
		slog.Error("audit record lost after successful transfer",
			"txHash", txHash,
			"walletAddress", req.WalletAddress,
			"amount", setting.FaucetAmount,
			"error", err,
		)
		s.lostRecords.Add(ctx, 1)
	}
	s.events.Publish(ctx, record)
	s.dispensed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))

	slog.Info("tokens dispensed",
		"txHash", txHash,
		"walletAddress", req.WalletAddress,
		"amount", setting.FaucetAmount,
		"responseTimeMs", responseTime,
	)

	return &models.FaucetResponse{
		TxHash:        txHash,
		WalletAddress: req.WalletAddress,
		Amount:        setting.FaucetAmount,
		ResponseTime:  responseTime,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// FundingAddress returns the funding wallet address.
func (s *Service) FundingAddress() string {
	return s.ledger.Address()
}

// FundingBalance returns the funding wallet balance in whole tokens.
func (s *Service) FundingBalance(ctx context.Context) (float64, error) {
	balance, err := s.ledger.Balance(ctx)
	if err != nil {
		return 0, NewInternalError("failed to query funding balance", err)
	}
	return balance, nil
}

// fail writes a failure record for the attempt and returns the service error.
// A record-write failure here is logged but never masks the original error.
func (s *Service) fail(ctx context.Context, req *models.FaucetRequest, setting *models.SystemSetting, start time.Time, svcErr *ServiceError) error {
	record := s.newRecord(req, setting, time.Since(start).Milliseconds())
	record.Status = models.TransactionFailed
	record.ErrorMessage = svcErr.Error()

	if _, err := s.records.AppendTransaction(ctx, record); err != nil {
		slog.Error("failed to record disbursement failure",
			"walletAddress", req.WalletAddress,
			"cause", svcErr.Code,
			"error", err,
		)
	}
	s.events.Publish(ctx, record)
	s.dispensed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failure")))

	slog.Warn("disbursement failed",
		"walletAddress", req.WalletAddress,
		"ip", req.IPAddress,
		"code", svcErr.Code,
		"error", svcErr.Error(),
	)
	return svcErr
}

// newRecord assembles the audit record common to all outcomes. Geolocation is
// best-effort and never aborts the flow.
func (s *Service) newRecord(req *models.FaucetRequest, setting *models.SystemSetting, responseTime int64) *models.TransactionRecord {
	return &models.TransactionRecord{
		ID:               models.NewRecordID(),
		WalletAddress:    req.WalletAddress,
		NormalizedAmount: setting.FaucetAmount,
		Country:          s.geo.Country(req.IPAddress),
		IPAddress:        req.IPAddress,
		UserAgent:        req.UserAgent,
		ResponseTime:     responseTime,
		CreatedAt:        time.Now().UTC(),
	}
}
