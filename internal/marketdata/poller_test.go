package marketdata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/updownbot/internal/domain"
)

type fakeQuoteSource struct {
	mu    sync.Mutex
	up    domain.Quote
	down  domain.Quote
	err   error
	calls int
}

func (s *fakeQuoteSource) BestQuotes(ctx context.Context, market domain.Market) (domain.Quote, domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.up, s.down, s.err
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func (denyAllLimiter) Wait(ctx context.Context, key string) error { return nil }

func testMarket() domain.Market {
	return domain.Market{
		ConditionID: "cond-1",
		Label:       "SOL-15m",
		Slug:        "sol-updown-15m-1700000000",
		Up:          domain.Token{ID: "tok-up", Side: domain.SideUp},
		Down:        domain.Token{ID: "tok-down", Side: domain.SideDown},
		Active:      true,
	}
}

func newTestPoller(source QuoteSource, slot *MarketSlot, cache *SnapshotCache, trigger chan struct{}, limiter domain.RateLimiter) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoller("SOL-15m", slot, source, cache, trigger, 100*time.Millisecond, limiter, RateQuota{Limit: 10, Window: time.Second}, logger)
}

func TestPoller_WritesCacheAndTriggers(t *testing.T) {
	now := time.Now().UTC()
	source := &fakeQuoteSource{
		up:   domain.Quote{TokenID: "tok-up", AskTicks: 470_000, ObservedAt: now},
		down: domain.Quote{TokenID: "tok-down", AskTicks: 520_000, ObservedAt: now},
	}
	cache := NewSnapshotCache("SOL-15m")
	trigger := make(chan struct{}, 1)
	p := newTestPoller(source, NewMarketSlot(testMarket()), cache, trigger, nil)

	p.poll(context.Background())

	snap, err := cache.Read("SOL-15m")
	require.NoError(t, err)
	assert.Equal(t, domain.Ticks(470_000), snap.Up.AskTicks)
	assert.Equal(t, domain.Ticks(520_000), snap.Down.AskTicks)
	assert.NotZero(t, snap.Up.Seq)

	select {
	case <-trigger:
	default:
		t.Fatal("expected a trigger after a cache change")
	}
}

func TestPoller_UnresolvedMarketSkipped(t *testing.T) {
	source := &fakeQuoteSource{}
	cache := NewSnapshotCache("SOL-15m")
	trigger := make(chan struct{}, 1)
	p := newTestPoller(source, NewMarketSlot(domain.Market{}), cache, trigger, nil)

	p.poll(context.Background())

	assert.Zero(t, source.calls, "no fetch before the market resolves")
}

func TestPoller_FetchErrorAbsorbed(t *testing.T) {
	source := &fakeQuoteSource{err: errors.New("connection reset")}
	cache := NewSnapshotCache("SOL-15m")
	trigger := make(chan struct{}, 1)
	p := newTestPoller(source, NewMarketSlot(testMarket()), cache, trigger, nil)

	p.poll(context.Background())

	_, err := cache.Read("SOL-15m")
	assert.ErrorIs(t, err, domain.ErrNotReady)
	select {
	case <-trigger:
		t.Fatal("failed fetch must not trigger evaluation")
	default:
	}
}

func TestPoller_RateLimitedCycleSkipped(t *testing.T) {
	source := &fakeQuoteSource{}
	cache := NewSnapshotCache("SOL-15m")
	trigger := make(chan struct{}, 1)
	p := newTestPoller(source, NewMarketSlot(testMarket()), cache, trigger, denyAllLimiter{})

	p.poll(context.Background())

	assert.Zero(t, source.calls)
}

func TestPoller_TriggerCoalesces(t *testing.T) {
	now := time.Now().UTC()
	source := &fakeQuoteSource{
		up:   domain.Quote{TokenID: "tok-up", AskTicks: 470_000, ObservedAt: now},
		down: domain.Quote{TokenID: "tok-down", AskTicks: 520_000, ObservedAt: now},
	}
	cache := NewSnapshotCache("SOL-15m")
	trigger := make(chan struct{}, 1)
	p := newTestPoller(source, NewMarketSlot(testMarket()), cache, trigger, nil)

	p.poll(context.Background())

	// A second refresh with newer quotes while the first trigger is still
	// pending must not block.
	source.mu.Lock()
	later := now.Add(time.Second)
	source.up.ObservedAt = later
	source.down.ObservedAt = later
	source.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.poll(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll blocked on a full trigger channel")
	}

	assert.Len(t, trigger, 1, "pending trigger already covers the refresh")
}

func TestPoller_UnchangedQuotesDoNotTrigger(t *testing.T) {
	now := time.Now().UTC()
	source := &fakeQuoteSource{
		up:   domain.Quote{TokenID: "tok-up", AskTicks: 470_000, ObservedAt: now},
		down: domain.Quote{TokenID: "tok-down", AskTicks: 520_000, ObservedAt: now},
	}
	cache := NewSnapshotCache("SOL-15m")
	trigger := make(chan struct{}, 1)
	p := newTestPoller(source, NewMarketSlot(testMarket()), cache, trigger, nil)

	p.poll(context.Background())
	<-trigger

	// Identical observation time means identical seq: dropped by the cache.
	p.poll(context.Background())

	select {
	case <-trigger:
		t.Fatal("unchanged quotes must not trigger evaluation")
	default:
	}
}
