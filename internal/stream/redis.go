// Package stream mirrors live snapshots into Redis for external consumers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"forex-observer/internal/market"
)

// ErrNoSnapshot is returned when nothing has been mirrored yet.
var ErrNoSnapshot = errors.New("stream: no snapshot mirrored yet")

// MirrorOptions configure the Redis mirror.
type MirrorOptions struct {
	Addr      string
	Password  string
	DB        int
	LatestKey string
	RecentKey string
	Channel   string
	MaxRecent int
	TTL       time.Duration
}

// Mirror publishes snapshots to Redis: a latest-value key, a capped recent
// list, and a pub/sub channel.
type Mirror struct {
	client *redis.Client
	opts   MirrorOptions
	logger zerolog.Logger
}

// NewMirror constructs a mirror over its own Redis connection.
func NewMirror(opts MirrorOptions, logger zerolog.Logger) *Mirror {
	if opts.LatestKey == "" {
		opts.LatestKey = "fxobserver:latest"
	}
	if opts.RecentKey == "" {
		opts.RecentKey = "fxobserver:recent"
	}
	if opts.Channel == "" {
		opts.Channel = "fxobserver:snapshots"
	}
	if opts.MaxRecent <= 0 {
		opts.MaxRecent = 50
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return &Mirror{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "redis_mirror").Logger(),
	}
}

// Ping verifies connectivity.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Publish mirrors one snapshot. All writes ride a single pipeline.
func (m *Mirror) Publish(ctx context.Context, snap market.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.opts.LatestKey, payload, m.opts.TTL)
	pipe.LPush(ctx, m.opts.RecentKey, payload)
	pipe.LTrim(ctx, m.opts.RecentKey, 0, int64(m.opts.MaxRecent-1))
	pipe.Publish(ctx, m.opts.Channel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror snapshot: %w", err)
	}
	return nil
}

// Latest reads the mirrored latest snapshot.
func (m *Mirror) Latest(ctx context.Context) (market.Snapshot, error) {
	data, err := m.client.Get(ctx, m.opts.LatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return market.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("read latest snapshot: %w", err)
	}

	var snap market.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return market.Snapshot{}, fmt.Errorf("decode latest snapshot: %w", err)
	}
	return snap, nil
}

// Recent returns up to limit mirrored snapshots, newest first.
func (m *Mirror) Recent(ctx context.Context, limit int) ([]market.Snapshot, error) {
	if limit <= 0 || limit > m.opts.MaxRecent {
		limit = m.opts.MaxRecent
	}

	items, err := m.client.LRange(ctx, m.opts.RecentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent snapshots: %w", err)
	}

	snaps := make([]market.Snapshot, 0, len(items))
	for _, item := range items {
		var snap market.Snapshot
		if err := json.Unmarshal([]byte(item), &snap); err != nil {
			m.logger.Warn().Err(err).Msg("skipping undecodable mirrored snapshot")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Close releases the Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}
