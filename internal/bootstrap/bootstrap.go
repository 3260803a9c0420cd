// Package bootstrap wires configuration into the stores, delivery client, sinks and
// services shared by the server, worker and dispatch binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.co/distributor/common/id"
	"basegraph.co/distributor/core/config"
	"basegraph.co/distributor/core/db"
	"basegraph.co/distributor/internal/blob"
	"basegraph.co/distributor/internal/delivery"
	"basegraph.co/distributor/internal/jobstatus"
	"basegraph.co/distributor/internal/queue"
	"basegraph.co/distributor/internal/report"
	"basegraph.co/distributor/internal/service"
	"basegraph.co/distributor/internal/store"
)

type App struct {
	Config   config.Config
	DB       *db.DB
	Redis    *redis.Client // nil without REDIS_URL
	Client   *delivery.Client
	Services *service.Services
	Statuses jobstatus.Store
	Jobs     *service.JobRunner

	closers []func() error
}

// New connects every configured dependency. nodeID must differ per running binary.
func New(ctx context.Context, cfg config.Config, nodeID int64) (*App, error) {
	app := &App{Config: cfg}
	if err := app.init(ctx, nodeID); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context, nodeID int64) error {
	cfg := a.Config

	if err := id.Init(nodeID); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	a.DB = database
	a.closers = append(a.closers, func() error { database.Close(); return nil })
	slog.InfoContext(ctx, "database connected")

	if cfg.Redis.Enabled() {
		client, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		a.Statuses = jobstatus.NewRedisStore(client, cfg.Redis.JobStatusTTL)
		slog.InfoContext(ctx, "redis connected", "stream", a.JobStream())
	} else {
		a.Statuses = jobstatus.NewMemoryStore()
		slog.InfoContext(ctx, "redis disabled, job status kept in memory")
	}

	stores := store.NewStores(database.Querier())

	client, err := newDeliveryClient(cfg, stores)
	if err != nil {
		return err
	}
	a.Client = client

	files, err := newFileStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	var uploader service.FileUploader
	var sinks report.Multi
	if files != nil {
		uploader = files
		sinks = append(sinks, report.NewFileSink(files, cfg.Storage.ReportFolder))
	}
	if cfg.Kafka.Enabled() {
		kafkaSink := report.NewKafkaSink(report.NewKafkaWriter(cfg.Kafka))
		a.closers = append(a.closers, kafkaSink.Close)
		sinks = append(sinks, kafkaSink)
		slog.InfoContext(ctx, "kafka report sink enabled", "topic", cfg.Kafka.ReportTopic)
	}

	var reports service.ReportPublisher
	if len(sinks) > 0 {
		reports = sinks
	}

	batches := delivery.NewBatchSender(client, cfg.Processing.RateLimit)
	a.Services = service.NewServices(stores, cfg, batches, reports, uploader)
	a.Jobs = a.Services.Jobs(a.Statuses)
	return nil
}

// JobStream is the Redis stream name for queued jobs.
func (a *App) JobStream() string {
	if a.Config.Redis.JobStream != "" {
		return a.Config.Redis.JobStream
	}
	return queue.StreamName(a.Config.Env)
}

// NewConsumer joins the job stream's consumer group under name.
func (a *App) NewConsumer(ctx context.Context, name string) (*queue.RedisConsumer, error) {
	if a.Redis == nil {
		return nil, errors.New("job stream needs REDIS_URL")
	}
	return queue.NewRedisConsumer(ctx, a.Redis, queue.ConsumerConfig{
		Stream:       a.JobStream(),
		Group:        a.Config.Redis.JobGroup,
		Consumer:     name,
		BatchSize:    1,
		Block:        5 * time.Second,
		RequeueDelay: time.Second,
	})
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("failed to close dependency", "error", err)
		}
	}
	a.closers = nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func newDeliveryClient(cfg config.Config, stores *store.Stores) (*delivery.Client, error) {
	httpClient, err := delivery.NewHTTPClient(cfg.Hub)
	if err != nil {
		return nil, fmt.Errorf("building hub http client: %w", err)
	}
	endpoint := cfg.Hub.BaseURL + cfg.Hub.WriteSignalPath
	transport, err := delivery.NewTransport(cfg.Hub.Transport, httpClient, endpoint)
	if err != nil {
		return nil, err
	}

	payloads := delivery.NewPayloadBuilder(stores.InitialMappings(), stores.AccountBalances(), delivery.Publisher{
		Name: cfg.Hub.Publisher,
		ID:   cfg.Hub.PublisherID,
	})

	return delivery.NewClient(
		transport,
		delivery.NewBreaker(cfg.Breaker),
		payloads,
		stores.Audits(),
		stores.InitialMappings(),
		delivery.Settings{
			RequestTimeout:  cfg.Hub.RequestTimeout,
			RetryAttempts:   cfg.Hub.RetryAttempts,
			RetryBackoff:    cfg.Hub.RetryBackoff,
			RetryMaxBackoff: cfg.Hub.RetryMaxBackoff,
			ConsumerID:      cfg.Audit.ConsumerID,
			TargetURL:       endpoint,
		},
	), nil
}

// newFileStorage prefers the bucket, falls back to a local directory, and
// returns nil when neither is configured.
func newFileStorage(ctx context.Context, cfg config.StorageConfig) (blob.FileStorage, error) {
	switch {
	case cfg.Enabled():
		storage, err := blob.NewMinioStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating object storage client: %w", err)
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "object storage enabled", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
		return storage, nil
	case cfg.LocalDir != "":
		storage, err := blob.NewLocalStorage(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "local file storage enabled", "dir", cfg.LocalDir)
		return storage, nil
	default:
		slog.InfoContext(ctx, "file storage disabled, reports and DIAL exports are off")
		return nil, nil
	}
}
