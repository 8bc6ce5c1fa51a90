package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/config"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/events/kafka"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/handler"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/ingest"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/logging"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/middleware"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/provider"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/repository"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("nanocard-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	entryRepo := repository.NewLedgerEntryRepository(db)
	cardRepo := repository.NewCardRepository(db)
	userRepo := repository.NewUserRepository(db)

	var publisher *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers)
		defer publisher.Close()
	}

	var aggregator *stats.Aggregator
	var importer *ingest.Importer
	if publisher != nil {
		aggregator = stats.NewAggregator(entryRepo, cardRepo, publisher, logger)
		importer = ingest.NewImporter(entryRepo, cardRepo, aggregator, publisher,
			cfg.ImportBatchSize, cfg.ImportFanOut, cfg.WriteRetries, logger)
	} else {
		aggregator = stats.NewAggregator(entryRepo, cardRepo, nil, logger)
		importer = ingest.NewImporter(entryRepo, cardRepo, aggregator, nil,
			cfg.ImportBatchSize, cfg.ImportFanOut, cfg.WriteRetries, logger)
	}

	providerOpts := provider.Options{
		Timeout:    time.Duration(cfg.ProviderTimeoutS) * time.Second,
		MaxRetries: cfg.ProviderRetries,
	}
	clients := []provider.Client{
		provider.NewMercuryClient(cfg.MercuryBaseURL, cfg.MercuryAPIKey, providerOpts),
		provider.NewCryptoMateClient(cfg.CryptoMateBaseURL, cfg.CryptoMateAPIKey, providerOpts),
	}

	scheduler := ingest.NewScheduler(clients, importer, cardRepo,
		time.Duration(cfg.SyncIntervalS)*time.Second,
		time.Duration(cfg.SyncWindowH)*time.Hour,
		logger)
	go scheduler.Start(ctx)

	authHandler := handler.NewAuthHandler(userRepo, cfg.JWTSecret, time.Duration(cfg.JWTExpiryH)*time.Hour)
	entryHandler := handler.NewEntryHandler(entryRepo, cardRepo, aggregator)
	cardHandler := handler.NewCardHandler(cardRepo, aggregator)
	syncHandler := handler.NewSyncHandler(importer, clients)
	healthHandler := handler.NewHealthHandler(db)

	authed := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("GET /api/v1/cards/{cardID}", authed(http.HandlerFunc(cardHandler.Get)))
	mux.Handle("GET /api/v1/cards/{cardID}/summary", authed(http.HandlerFunc(cardHandler.GetSummary)))
	mux.Handle("POST /api/v1/cards/{cardID}/summary/recompute", authed(http.HandlerFunc(cardHandler.RecomputeSummary)))
	mux.Handle("GET /api/v1/cards/{cardID}/entries", authed(http.HandlerFunc(entryHandler.ListByCard)))
	mux.Handle("POST /api/v1/cards/{cardID}/entries", authed(http.HandlerFunc(entryHandler.CreateManual)))
	mux.Handle("DELETE /api/v1/entries/{entryID}", authed(http.HandlerFunc(entryHandler.SoftDelete)))
	mux.Handle("POST /api/v1/entries/{entryID}/restore", authed(http.HandlerFunc(entryHandler.Restore)))
	mux.Handle("GET /api/v1/entries/{entryID}/history", authed(http.HandlerFunc(entryHandler.History)))
	mux.Handle("POST /api/v1/sync/{provider}", authed(http.HandlerFunc(syncHandler.ImportMovements)))

	chain := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var lastErr error
	for i := range 30 {
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}
