package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faucet/internal/analytics"
	"faucet/internal/api"
	"faucet/internal/config"
	"faucet/internal/events"
	"faucet/internal/faucet"
	"faucet/internal/geo"
	"faucet/internal/ledger"
	"faucet/internal/logger"
	"faucet/internal/models"
	"faucet/internal/observability"
	"faucet/internal/quota"
	"faucet/internal/ratelimit"
	"faucet/internal/storage"
	"faucet/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	storageInstance, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer storageInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented
	}

	if err := seedBootstrapKey(context.Background(), activeStorage, cfg); err != nil {
		slog.Error("Failed to seed bootstrap key", "error", err)
		os.Exit(1)
	}

	// Initialize the quota counter store backing rate limits
	quotaStore, err := newQuotaStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize quota store", "error", err)
		os.Exit(1)
	}
	defer quotaStore.Close()

	guard, err := ratelimit.NewGuard(quotaStore, activeStorage)
	if err != nil {
		slog.Error("Failed to initialize rate limit guard", "error", err)
		os.Exit(1)
	}

	// Initialize the chain client for the funding wallet
	ledgerClient, err := ledger.NewSuiClient(cfg.Ledger)
	if err != nil {
		slog.Error("Failed to initialize ledger client", "error", err)
		os.Exit(1)
	}
	slog.Info("Funding wallet loaded", "address", ledgerClient.Address())

	// Country resolution for audit records (noop when disabled)
	geoResolver, err := geo.NewResolver(cfg.Geo)
	if err != nil {
		slog.Error("Failed to initialize geo resolver", "error", err)
		os.Exit(1)
	}
	defer geoResolver.Close()

	// Outcome event publishing (noop when disabled)
	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		slog.Error("Failed to initialize event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Initialize the disbursement coordinator
	faucetService, err := faucet.NewService(activeStorage, activeStorage, guard, ledgerClient, geoResolver, publisher)
	if err != nil {
		slog.Error("Failed to initialize faucet service", "error", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(activeStorage)
	if err != nil {
		slog.Error("Failed to initialize analytics service", "error", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(faucetService, analyticsService, activeStorage, quotaStore, ver.Version)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr)

		var err error
		if cfg.Server.TLSEnabled {
			if cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "" {
				slog.Error("TLS is enabled but cert file or key file is not specified")
				os.Exit(1)
			}
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// newQuotaStore creates the rate-limit counter store based on configuration.
func newQuotaStore(cfg *models.Config) (quota.Store, error) {
	switch cfg.Quota.Type {
	case models.QuotaTypeMemory:
		return quota.NewMemoryStore(), nil
	case models.QuotaTypeRedis:
		return quota.NewRedisStore(cfg.Quota.Redis)
	default:
		return nil, fmt.Errorf("unsupported quota store type: %s", cfg.Quota.Type)
	}
}

// seedBootstrapKey inserts the configured bootstrap key into storage if it
// does not already exist. It is a no-op when BootstrapKey is empty.
func seedBootstrapKey(ctx context.Context, store storage.Storage, cfg *models.Config) error {
	raw := cfg.Security.BootstrapKey
	if raw == "" {
		return nil
	}
	hash := models.HashAPIKey(raw)
	if _, err := store.GetAPIKeyByHash(ctx, hash); err == nil {
		// Already seeded - idempotent.
		return nil
	}
	key := models.NewAPIKey(models.NewKeyID(), "bootstrap", raw, []string{models.PermissionAdmin})
	if err := store.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("seed bootstrap key: %w", err)
	}
	slog.Info("bootstrap API key seeded", "id", key.ID, "prefix", key.Prefix)
	return nil
}
