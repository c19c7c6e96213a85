package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harborpay/charge-connector/internal/config"
	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/service"
	"github.com/harborpay/charge-connector/internal/infrastructure/gateway"
	"github.com/harborpay/charge-connector/internal/infrastructure/persistence/postgres"
	"github.com/harborpay/charge-connector/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting charge connector",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	chargeRepo := postgres.NewChargeRepository(db)

	gatewayClient := gateway.NewGatewayClient(cfg.Gateway)
	retryGatewayClient := gateway.NewRetryGatewayClient(gatewayClient, cfg.Retry)

	terminator := service.NewTerminationService(chargeRepo, retryGatewayClient, logger)

	expirySweeper := worker.NewExpirySweeper(
		chargeRepo,
		terminator,
		cfg.Expiry.Interval,
		cfg.Expiry.ChargeTTL,
		cfg.Expiry.AwaitingCaptureTTL,
		logger,
	)

	authModes := make([]domain.AuthorisationMode, len(cfg.Cleanup.AuthModes))
	for i, m := range cfg.Cleanup.AuthModes {
		authModes[i] = domain.AuthorisationMode(m)
	}

	cleanupSweeper := worker.NewAuthErrorCleanupSweeper(
		chargeRepo,
		retryGatewayClient,
		cfg.Cleanup.Interval,
		cfg.Cleanup.Providers,
		authModes,
		cfg.Cleanup.Limit,
		logger,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go expirySweeper.Start(workerCtx)
	go cleanupSweeper.Start(workerCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("ops server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("connector exited")
}
