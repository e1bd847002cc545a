package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/diaspomoney/payments/internal/bootstrap"
	"github.com/diaspomoney/payments/internal/command"
	"github.com/diaspomoney/payments/internal/controller"
	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	infraRedis "github.com/diaspomoney/payments/internal/infrastructure/redis"
	"github.com/diaspomoney/payments/internal/providers"
	"github.com/diaspomoney/payments/internal/repository/postgres"
	"github.com/diaspomoney/payments/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "payments-api", "payments")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config
	logger := app.Logger

	// --- Repositories ---
	bookingRepo := postgres.NewBookingRepository(app.Pool)
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Payment strategies ---
	registry := providers.NewRegistryFromConfig(cfg, providers.Observer{
		Logger:   logger,
		Metrics:  app.Metrics,
		Reporter: observability.NewLogReporter(logger),
	})

	// --- Services ---
	bookings := service.NewBookingService(bookingRepo, logger)
	transactions := service.NewTransactionService(transactionRepo, registry, logger)
	payments := service.NewPaymentService(registry, transactions, logger)
	facade := service.NewBookingFacade(bookings, payments, transactions, txManager, logger)

	// --- Commands ---
	commands := command.NewHandler(
		command.WithMaxHistory(cfg.Command.MaxHistory),
		command.WithLogger(logger),
		command.WithMetrics(app.Metrics),
		command.WithPublisher(infraRedis.NewAuditPublisher(app.Redis, cfg.Command.AuditStream)),
	)

	router := controller.NewRouter(controller.RouterDeps{
		ServiceName:  "payments-api",
		Commands:     commands,
		Payments:     payments,
		Bookings:     bookings,
		Facade:       facade,
		Transactions: transactions,
		Strategies:   registry,
		Idempotency:  infraRedis.NewIdempotencyStore(app.Redis, cfg.Idempotency.TTL, cfg.Idempotency.LockTTL),
		HealthChecks: map[string]controller.Check{
			"database": app.Pool.Ping,
			"redis": func(ctx context.Context) error {
				return app.Redis.Ping(ctx).Err()
			},
		},
		Metrics: app.Metrics,
		Server:  cfg.Server,
		Logger:  logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
	}
	logger.Info().Msg("Server exited")
}
