// Package cache keeps a read-side copy of the aggregate snapshot in Redis.
//
// The snapshot lives in a single hash keyed by place id. A replace writes the
// new snapshot under a run-scoped staging key and RENAMEs it over the live key,
// so readers never observe a half-written snapshot.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forklore/placescore/internal/aggregate"
)

// DefaultPrefix namespaces every key written by the cache.
const DefaultPrefix = "placescore:aggregates"

// writeChunk bounds fields per HSET while staging.
const writeChunk = 500

// ErrNoSnapshot is returned by Meta when nothing has been cached yet.
var ErrNoSnapshot = errors.New("cache: no snapshot cached")

// Meta describes the cached snapshot.
type Meta struct {
	RunID       string
	ComputedAt  time.Time
	EntityCount int
}

// Config configures a SnapshotCache.
type Config struct {
	// Prefix overrides DefaultPrefix.
	Prefix string
	// TTL expires the live snapshot when set. Zero keeps it until replaced.
	TTL    time.Duration
	Logger *slog.Logger
}

// SnapshotCache stores aggregate snapshots in Redis.
type SnapshotCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a SnapshotCache on an existing client.
func New(client redis.UniversalClient, cfg Config) *SnapshotCache {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SnapshotCache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}
}

// Connect parses a redis:// URL and verifies the server answers PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *SnapshotCache) snapshotKey() string { return c.prefix + ":snapshot" }
func (c *SnapshotCache) metaKey() string     { return c.prefix + ":meta" }
func (c *SnapshotCache) stagingKey(runID string) string {
	return c.prefix + ":staging:" + runID
}

// Replace swaps the cached snapshot for the given one.
func (c *SnapshotCache) Replace(ctx context.Context, runID string, snapshot aggregate.Snapshot, computedAt time.Time) error {
	staging := c.stagingKey(runID)

	fields := make([]interface{}, 0, 2*writeChunk)
	flush := func() error {
		if len(fields) == 0 {
			return nil
		}
		if err := c.client.HSet(ctx, staging, fields...).Err(); err != nil {
			return fmt.Errorf("stage snapshot: %w", err)
		}
		fields = fields[:0]
		return nil
	}

	for id, agg := range snapshot {
		raw, err := json.Marshal(agg)
		if err != nil {
			_ = c.client.Del(ctx, staging).Err()
			return fmt.Errorf("encode aggregate %s: %w", id, err)
		}
		fields = append(fields, id, raw)
		if len(fields) >= 2*writeChunk {
			if err := flush(); err != nil {
				_ = c.client.Del(ctx, staging).Err()
				return err
			}
		}
	}
	if err := flush(); err != nil {
		_ = c.client.Del(ctx, staging).Err()
		return err
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(snapshot) == 0 {
			pipe.Del(ctx, c.snapshotKey())
		} else {
			pipe.Rename(ctx, staging, c.snapshotKey())
			if c.ttl > 0 {
				pipe.Expire(ctx, c.snapshotKey(), c.ttl)
			}
		}
		pipe.HSet(ctx, c.metaKey(),
			"run_id", runID,
			"computed_at", computedAt.UTC().Format(time.RFC3339Nano),
			"entity_count", len(snapshot),
		)
		if c.ttl > 0 {
			pipe.Expire(ctx, c.metaKey(), c.ttl)
		}
		return nil
	})
	if err != nil {
		_ = c.client.Del(ctx, staging).Err()
		return fmt.Errorf("swap snapshot: %w", err)
	}

	c.logger.Debug("cached aggregate snapshot",
		slog.String("run_id", runID),
		slog.Int("entities", len(snapshot)))
	return nil
}

// Get returns the cached aggregate for a place.
func (c *SnapshotCache) Get(ctx context.Context, placeID string) (aggregate.EntityAggregate, bool, error) {
	var agg aggregate.EntityAggregate

	raw, err := c.client.HGet(ctx, c.snapshotKey(), placeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return agg, false, nil
	}
	if err != nil {
		return agg, false, fmt.Errorf("get cached aggregate: %w", err)
	}
	if err := json.Unmarshal(raw, &agg); err != nil {
		return agg, false, fmt.Errorf("decode cached aggregate %s: %w", placeID, err)
	}
	return agg, true, nil
}

// Snapshot returns the whole cached snapshot.
func (c *SnapshotCache) Snapshot(ctx context.Context) (aggregate.Snapshot, error) {
	all, err := c.client.HGetAll(ctx, c.snapshotKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load cached snapshot: %w", err)
	}
	snapshot := make(aggregate.Snapshot, len(all))
	for id, raw := range all {
		var agg aggregate.EntityAggregate
		if err := json.Unmarshal([]byte(raw), &agg); err != nil {
			return nil, fmt.Errorf("decode cached aggregate %s: %w", id, err)
		}
		snapshot[id] = agg
	}
	return snapshot, nil
}

// Top returns the cached snapshot ranked by the given order.
func (c *SnapshotCache) Top(ctx context.Context, order aggregate.Order, limit int) ([]aggregate.EntityAggregate, error) {
	snapshot, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.Rank(snapshot, order, limit), nil
}

// Meta returns the metadata of the cached snapshot.
func (c *SnapshotCache) Meta(ctx context.Context) (Meta, error) {
	var meta Meta

	values, err := c.client.HGetAll(ctx, c.metaKey()).Result()
	if err != nil {
		return meta, fmt.Errorf("load snapshot meta: %w", err)
	}
	if len(values) == 0 {
		return meta, ErrNoSnapshot
	}

	meta.RunID = values["run_id"]
	if meta.ComputedAt, err = time.Parse(time.RFC3339Nano, values["computed_at"]); err != nil {
		return meta, fmt.Errorf("parse computed_at: %w", err)
	}
	if meta.EntityCount, err = strconv.Atoi(values["entity_count"]); err != nil {
		return meta, fmt.Errorf("parse entity_count: %w", err)
	}
	return meta, nil
}
