package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

const streamTTL = 5 * time.Minute

// StreamCache implements domain.StreamCache with JSON-serialized stream read
// views under "stream:{id}" keys.
type StreamCache struct {
	rdb *redis.Client
}

// NewStreamCache creates a StreamCache backed by the given Client.
func NewStreamCache(c *Client) *StreamCache {
	return &StreamCache{rdb: c.Underlying()}
}

func streamKey(id domain.ID) string { return "stream:" + id.String() }

// Get fetches a cached stream. A cache miss returns domain.ErrNotFound.
func (sc *StreamCache) Get(ctx context.Context, id domain.ID) (domain.Stream, error) {
	data, err := sc.rdb.Get(ctx, streamKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Stream{}, domain.ErrNotFound
		}
		return domain.Stream{}, fmt.Errorf("redis: get stream %s: %w", id, err)
	}

	var s domain.Stream
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Stream{}, fmt.Errorf("redis: unmarshal stream %s: %w", id, err)
	}
	return s, nil
}

// Set stores a stream read view with a 5-minute TTL.
func (sc *StreamCache) Set(ctx context.Context, s domain.Stream) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal stream %s: %w", s.ID, err)
	}
	if err := sc.rdb.Set(ctx, streamKey(s.ID), data, streamTTL).Err(); err != nil {
		return fmt.Errorf("redis: set stream %s: %w", s.ID, err)
	}
	return nil
}

// Invalidate drops a cached stream.
func (sc *StreamCache) Invalidate(ctx context.Context, id domain.ID) error {
	if err := sc.rdb.Del(ctx, streamKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate stream %s: %w", id, err)
	}
	return nil
}
