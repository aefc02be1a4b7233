package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/event"
	"spread_go/internal/infra"

	"github.com/redis/go-redis/v9"
)

const latestKeyPrefix = "spread:latest:"

// RedisSink mirrors every signal batch into Redis: one hash per instrument holding
// the latest high-spread record, plus a PUBLISH of the whole batch for subscribers.
type RedisSink struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	logger  *slog.Logger
}

// NewRedisSink creates a sink for cfg. The connection is established lazily.
func NewRedisSink(cfg infra.RedisConfig) *RedisSink {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
	})
	channel := cfg.Channel
	if channel == "" {
		channel = "spread:signals"
	}
	return &RedisSink{
		client:  rdb,
		channel: channel,
		ttl:     time.Duration(cfg.TTLSec) * time.Second,
		logger:  slog.Default().With("module", "redis"),
	}
}

// Ping checks connectivity.
func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Name identifies the sink.
func (r *RedisSink) Name() string { return "redis" }

// Handle writes the batch in a single pipeline.
func (r *RedisSink) Handle(ctx context.Context, b event.Batch) error {
	if len(b.Records) == 0 {
		return nil
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	pipe := r.client.Pipeline()
	for _, rec := range b.Records {
		key := latestKey(rec.Instrument)
		pipe.HSet(ctx, key, recordFields(b, rec)...)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
	}
	pipe.Publish(ctx, r.channel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewNetworkError("redis pipeline", err)
	}
	r.logger.Debug("Batch published", slog.String("batch", b.ID), slog.Int("records", len(b.Records)))
	return nil
}

// Close releases the connection pool.
func (r *RedisSink) Close() error {
	return r.client.Close()
}

func latestKey(instrument string) string {
	return latestKeyPrefix + instrument
}

func recordFields(b event.Batch, rec domain.SpreadRecord) []interface{} {
	return []interface{}{
		"batch_id", b.ID,
		"cycle", strconv.FormatUint(b.Cycle, 10),
		"venue_a", rec.VenueA,
		"venue_b", rec.VenueB,
		"price_a", strconv.FormatFloat(rec.PriceA, 'f', -1, 64),
		"price_b", strconv.FormatFloat(rec.PriceB, 'f', -1, 64),
		"spread", strconv.FormatFloat(rec.Spread, 'f', -1, 64),
		"spread_percent", strconv.FormatFloat(rec.SpreadPercent, 'f', -1, 64),
		"at", b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
