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

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache with JSON-serialized market read
// views under "market:{id}" keys. Set also writes a stream-to-market index
// key; no method of MarketCache reads it, and Invalidate leaves it to expire
// with its TTL.
//
// Key schema:
//
//	market:{id}            - JSON market view
//	market:stream:{stream} - string value of the market ID
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id domain.ID) string           { return "market:" + id.String() }
func marketStreamKey(stream domain.ID) string { return "market:stream:" + stream.String() }

// Get fetches a cached market. A cache miss returns domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, id domain.ID) (domain.BettingMarket, error) {
	data, err := mc.rdb.Get(ctx, marketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BettingMarket{}, domain.ErrNotFound
		}
		return domain.BettingMarket{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var m domain.BettingMarket
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.BettingMarket{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return m, nil
}

// Set stores a market read view with a 5-minute TTL and indexes it by stream.
func (mc *MarketCache) Set(ctx context.Context, m domain.BettingMarket) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.ID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, marketKey(m.ID), data, marketTTL)
	pipe.Set(ctx, marketStreamKey(m.Stream), m.ID.String(), marketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.ID, err)
	}
	return nil
}

// Invalidate drops a cached market.
func (mc *MarketCache) Invalidate(ctx context.Context, id domain.ID) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}
