package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/queue"
)

type RedisReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration // Pending entries idle at least this long are claimed
	Interval  time.Duration
	BatchSize int64
	// MaxDeliveries dead-letters a job handed out this many times without an ACK.
	MaxDeliveries int64
}

// RedisReclaimer periodically claims jobs left pending by a consumer that died
// between XREADGROUP and XACK.
type RedisReclaimer struct {
	client    *redis.Client
	cfg       RedisReclaimerConfig
	consumer  Consumer
	processor queue.MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRedisReclaimer(client *redis.Client, cfg RedisReclaimerConfig, consumer Consumer, processor queue.MessageProcessor) *RedisReclaimer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is done.
func (r *RedisReclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "distributor.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"max_deliveries", r.cfg.MaxDeliveries,
		"stream", r.cfg.Stream,
		"group", r.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if err := r.reclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
		}
	}
}

func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

func (r *RedisReclaimer) reclaimOnce(ctx context.Context) error {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
		slog.InfoContext(ctx, "found stale pending job",
			"message_id", p.ID,
			"original_consumer", p.Consumer,
			"idle_time", p.Idle,
			"deliveries", p.RetryCount)
	}

	// MinIdle is re-checked by XCLAIM, so entries another reclaimer took in the meantime are skipped.
	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return fmt.Errorf("xclaim: %w", err)
	}
	if len(claimed) < len(ids) {
		slog.DebugContext(ctx, "some stale jobs were claimed elsewhere",
			"pending", len(ids),
			"claimed", len(claimed))
	}

	for _, raw := range claimed {
		r.handleClaimed(ctx, raw, deliveries[raw.ID])
	}
	return nil
}

func (r *RedisReclaimer) handleClaimed(ctx context.Context, raw redis.XMessage, deliveries int64) {
	msg, err := queue.ParseMessage(raw)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse reclaimed job, acknowledging to prevent loop",
			"error", err, "message_id", raw.ID)
		_ = r.consumer.Ack(ctx, queue.Message{ID: raw.ID, Raw: raw})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID: logger.Ptr(msg.Job.JobID),
	})

	if deliveries >= r.cfg.MaxDeliveries {
		reason := fmt.Sprintf("abandoned after %d deliveries without ack", deliveries)
		slog.WarnContext(ctx, "stale job exceeded delivery limit",
			"message_id", msg.ID,
			"deliveries", deliveries)
		if err := r.consumer.SendDLQ(ctx, msg, reason); err != nil {
			slog.ErrorContext(ctx, "failed to dead-letter stale job", "error", err, "message_id", msg.ID)
		}
		return
	}

	start := time.Now()
	if err := r.processor(ctx, msg); err != nil {
		// Left pending; the next cycle claims it again and counts the delivery.
		slog.ErrorContext(ctx, "reclaimed job failed",
			"error", err,
			"message_id", msg.ID,
			"deliveries", deliveries+1)
		return
	}

	slog.InfoContext(ctx, "reclaimed job processed",
		"message_id", msg.ID,
		"duration_ms", time.Since(start).Milliseconds())
}
