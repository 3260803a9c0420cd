package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/common/otel"
	"basegraph.co/distributor/core/config"
	"basegraph.co/distributor/internal/bootstrap"
	"basegraph.co/distributor/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Redis.Enabled() {
		slog.ErrorContext(ctx, "worker needs REDIS_URL")
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	slog.InfoContext(ctx, "distributor worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.JobGroup,
		"consumer_name", cfg.Redis.JobConsumer)

	// Use a different snowflake node than the server
	app, err := bootstrap.New(ctx, cfg, 2)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	consumer, err := app.NewConsumer(ctx, cfg.Redis.JobConsumer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, app.Jobs, worker.Config{MaxAttempts: cfg.Redis.JobMaxAttempts})

	reclaimer := worker.NewRedisReclaimer(app.Redis, worker.RedisReclaimerConfig{
		Stream:        consumer.Config().Stream,
		Group:         consumer.Config().Group,
		Consumer:      cfg.Redis.JobConsumer + "-reclaimer",
		MinIdle:       30 * time.Minute,
		Interval:      time.Minute,
		BatchSize:     10,
		MaxDeliveries: int64(cfg.Redis.JobMaxAttempts) + 1,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running", "stream", app.JobStream())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Reclaimer first: it is idle most of the time
	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
distributor worker
`
