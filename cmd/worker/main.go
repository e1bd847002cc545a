package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/diaspomoney/payments/internal/bootstrap"
	infraRedis "github.com/diaspomoney/payments/internal/infrastructure/redis"
	"github.com/diaspomoney/payments/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "payments-worker", "payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	stream := app.Config.Command.AuditStream
	if stream == "" {
		stream = infraRedis.DefaultAuditStream
	}

	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		stream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
		os.Exit(1)
	}

	audit := worker.NewAuditWorker(consumer, worker.LogSink(app.Logger), worker.Config{}, app.Metrics, app.Logger)

	app.Logger.Info().
		Str("stream", stream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return audit.Run(gCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
