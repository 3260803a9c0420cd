package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/common/otel"
	"basegraph.co/distributor/core/config"
	"basegraph.co/distributor/internal/bootstrap"
	"basegraph.co/distributor/internal/http/handler"
	"basegraph.co/distributor/internal/http/middleware"
	httprouter "basegraph.co/distributor/internal/http/router"
	"basegraph.co/distributor/internal/queue"
	"basegraph.co/distributor/internal/scheduler"
	"basegraph.co/distributor/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "distributor starting", "env", cfg.Env, "service", cfg.OTel.ServiceName, "hub", cfg.Hub.BaseURL)

	app, err := bootstrap.New(ctx, cfg, 1)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	// Jobs accepted over HTTP go to the Redis stream when configured, else run in-process.
	var jobQueue handler.JobQueue
	var inline *worker.InlineQueue
	var background []func()
	if app.Redis != nil {
		jobQueue = queue.NewRedisProducer(app.Redis, app.JobStream())
		if cfg.Redis.EmbeddedWorker {
			stop, err := startWorker(runCtx, app, cfg.Redis.JobConsumer+"-server")
			if err != nil {
				slog.ErrorContext(ctx, "failed to start embedded worker", "error", err)
				os.Exit(1)
			}
			background = append(background, stop)
		}
	} else {
		inline = worker.NewInlineQueue(app.Jobs)
		jobQueue = inline
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		var dial scheduler.Exporter
		if export := app.Services.DialExport(); export != nil {
			dial = export
		}
		sched, err = scheduler.New(cfg.Scheduler, app.Jobs, dial)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
		slog.InfoContext(ctx, "scheduler started", "timezone", cfg.Scheduler.Timezone)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, app, jobQueue)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.WarnContext(shutdownCtx, "scheduled runs still in progress at shutdown", "error", err)
		}
	}

	for _, stop := range background {
		stop()
	}
	stopRun()

	if inline != nil {
		inline.Wait()
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, app *bootstrap.App, jobQueue handler.JobQueue) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, httprouter.RouterConfig{
		Jobs:  app.Jobs,
		Queue: jobQueue,
		DB:    app.DB,
	})

	return router
}

// startWorker consumes the job stream in the background and returns its stop function.
func startWorker(ctx context.Context, app *bootstrap.App, name string) (func(), error) {
	consumer, err := app.NewConsumer(ctx, name)
	if err != nil {
		return nil, err
	}

	w := worker.New(consumer, app.Jobs, worker.Config{MaxAttempts: app.Config.Redis.JobMaxAttempts})
	reclaimer := worker.NewRedisReclaimer(app.Redis, worker.RedisReclaimerConfig{
		Stream:        consumer.Config().Stream,
		Group:         consumer.Config().Group,
		Consumer:      name + "-reclaimer",
		MinIdle:       30 * time.Minute,
		Interval:      time.Minute,
		BatchSize:     10,
		MaxDeliveries: int64(app.Config.Redis.JobMaxAttempts) + 1,
	}, consumer, w.ProcessMessage)

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "worker stopped with error", "error", err)
		}
	}()
	go reclaimer.Run(ctx)

	return func() {
		reclaimer.Stop()
		w.Stop()
	}, nil
}

const banner = `
 ____ ___ ____ _____ ____  ___ ____  _   _ _____ ___  ____
|  _ \_ _/ ___|_   _|  _ \|_ _| __ )| | | |_   _/ _ \|  _ \
| | | | |\___ \ | | | |_) || ||  _ \| | | | | || | | | |_) |
| |_| | | ___) || | |  _ < | || |_) | |_| | | || |_| |  _ <
|____/___|____/ |_| |_| \_\___|____/ \___/  |_| \___/|_| \_\
`
