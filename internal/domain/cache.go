package domain

import "context"

// StreamCache caches stream read views.
type StreamCache interface {
	Get(ctx context.Context, id ID) (Stream, error)
	Set(ctx context.Context, s Stream) error
	Invalidate(ctx context.Context, id ID) error
}

// MarketCache caches market read views, including the outcome reserves that
// implied probabilities are computed from.
type MarketCache interface {
	Get(ctx context.Context, id ID) (BettingMarket, error)
	Set(ctx context.Context, m BettingMarket) error
	Invalidate(ctx context.Context, id ID) error
}

// SignalBus carries committed engine events between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
