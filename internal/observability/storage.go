package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"faucet/internal/models"
	"faucet/internal/storage"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("faucet/storage")
	meter := otel.Meter("faucet/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) AppendTransaction(ctx context.Context, record *models.TransactionRecord) (string, error) {
	ctx, span := s.startSpan(ctx, "AppendTransaction",
		attribute.String("wallet_address", record.WalletAddress),
		attribute.String("status", string(record.Status)),
	)
	start := time.Now()
	id, err := s.inner.AppendTransaction(ctx, record)
	s.record(ctx, span, "AppendTransaction", start, err)
	return id, err
}

func (s *InstrumentedStorage) TransactionHistory(ctx context.Context, walletAddress, ipAddress string, limit int) ([]*models.TransactionRecord, error) {
	ctx, span := s.startSpan(ctx, "TransactionHistory", attribute.Int("limit", limit))
	start := time.Now()
	result, err := s.inner.TransactionHistory(ctx, walletAddress, ipAddress, limit)
	s.record(ctx, span, "TransactionHistory", start, err)
	return result, err
}

func (s *InstrumentedStorage) WalletActivity(ctx context.Context, walletAddress string, since time.Time) ([]*models.TransactionRecord, error) {
	ctx, span := s.startSpan(ctx, "WalletActivity", attribute.String("wallet_address", walletAddress))
	start := time.Now()
	result, err := s.inner.WalletActivity(ctx, walletAddress, since)
	s.record(ctx, span, "WalletActivity", start, err)
	return result, err
}

func (s *InstrumentedStorage) TransactionStats(ctx context.Context, since time.Time) ([]models.StatusStat, error) {
	ctx, span := s.startSpan(ctx, "TransactionStats")
	start := time.Now()
	result, err := s.inner.TransactionStats(ctx, since)
	s.record(ctx, span, "TransactionStats", start, err)
	return result, err
}

func (s *InstrumentedStorage) TopSources(ctx context.Context, since time.Time, limit int) ([]models.SourceStat, error) {
	ctx, span := s.startSpan(ctx, "TopSources", attribute.Int("limit", limit))
	start := time.Now()
	result, err := s.inner.TopSources(ctx, since, limit)
	s.record(ctx, span, "TopSources", start, err)
	return result, err
}

func (s *InstrumentedStorage) GeographicDistribution(ctx context.Context, since time.Time) ([]models.CountryStat, error) {
	ctx, span := s.startSpan(ctx, "GeographicDistribution")
	start := time.Now()
	result, err := s.inner.GeographicDistribution(ctx, since)
	s.record(ctx, span, "GeographicDistribution", start, err)
	return result, err
}

func (s *InstrumentedStorage) TopCountries(ctx context.Context, since time.Time, limit int) (*models.TopCountries, error) {
	ctx, span := s.startSpan(ctx, "TopCountries", attribute.Int("limit", limit))
	start := time.Now()
	result, err := s.inner.TopCountries(ctx, since, limit)
	s.record(ctx, span, "TopCountries", start, err)
	return result, err
}

func (s *InstrumentedStorage) HourlyDistribution(ctx context.Context, since time.Time) ([]models.HourlyStat, error) {
	ctx, span := s.startSpan(ctx, "HourlyDistribution")
	start := time.Now()
	result, err := s.inner.HourlyDistribution(ctx, since)
	s.record(ctx, span, "HourlyDistribution", start, err)
	return result, err
}

func (s *InstrumentedStorage) PerformanceStats(ctx context.Context, since time.Time) (*models.PerformanceStats, error) {
	ctx, span := s.startSpan(ctx, "PerformanceStats")
	start := time.Now()
	result, err := s.inner.PerformanceStats(ctx, since)
	s.record(ctx, span, "PerformanceStats", start, err)
	return result, err
}

func (s *InstrumentedStorage) CreateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	ctx, span := s.startSpan(ctx, "CreateSystemSetting")
	start := time.Now()
	err := s.inner.CreateSystemSetting(ctx, setting)
	s.record(ctx, span, "CreateSystemSetting", start, err)
	return err
}

func (s *InstrumentedStorage) GetSystemSetting(ctx context.Context) (*models.SystemSetting, error) {
	ctx, span := s.startSpan(ctx, "GetSystemSetting")
	start := time.Now()
	result, err := s.inner.GetSystemSetting(ctx)
	s.record(ctx, span, "GetSystemSetting", start, err)
	return result, err
}

func (s *InstrumentedStorage) UpdateSystemSetting(ctx context.Context, setting *models.SystemSetting) error {
	ctx, span := s.startSpan(ctx, "UpdateSystemSetting")
	start := time.Now()
	err := s.inner.UpdateSystemSetting(ctx, setting)
	s.record(ctx, span, "UpdateSystemSetting", start, err)
	return err
}

func (s *InstrumentedStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	ctx, span := s.startSpan(ctx, "CreateAPIKey", attribute.String("key_id", key.ID))
	start := time.Now()
	err := s.inner.CreateAPIKey(ctx, key)
	s.record(ctx, span, "CreateAPIKey", start, err)
	return err
}

func (s *InstrumentedStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	ctx, span := s.startSpan(ctx, "GetAPIKeyByHash")
	start := time.Now()
	result, err := s.inner.GetAPIKeyByHash(ctx, hash)
	s.record(ctx, span, "GetAPIKeyByHash", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
