package domain

import (
	"context"
	"time"
)

// LedgerAggregate is the running summary maintained by the position ledger.
type LedgerAggregate struct {
	Trades         int64
	Filled         int64
	PartialFills   int64
	Rejected       int64
	Cancelled      int64
	Settled        int64
	Committed      Ticks // total capital committed across resolved trades
	ExpectedProfit Ticks // sum of expected profit on filled trades
	RealizedProfit Ticks // sum of settled payouts minus filled-leg cost
}

// TradeStore persists resolved trades. Implemented by store/postgres.
type TradeStore interface {
	InsertTrade(ctx context.Context, trade Trade) error
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Trade, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	LoadAggregate(ctx context.Context) (LedgerAggregate, error)
}

// EventBus publishes structured events for the external alerting layer.
// Implemented by cache/redis.
type EventBus interface {
	PublishEvent(ctx context.Context, event Event) error
	SubscribeEvents(ctx context.Context) (<-chan Event, error)
}

// RateLimiter provides request pacing for outbound API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking, used to guarantee a single
// trading instance per wallet.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BlobWriter stores archived ledger exports. Implemented by blob/s3.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
