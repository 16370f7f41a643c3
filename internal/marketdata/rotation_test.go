package marketdata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/updownbot/internal/domain"
)

type fakeFinder struct {
	markets map[string]domain.Market
	err     error
	calls   int
}

func (f *fakeFinder) FindMarket(ctx context.Context, asset string, windowMinutes int) (domain.Market, error) {
	f.calls++
	if f.err != nil {
		return domain.Market{}, f.err
	}
	return f.markets[asset], nil
}

func solMarket(conditionID string) domain.Market {
	return domain.Market{
		ConditionID: conditionID,
		Label:       "SOL-15m",
		Up:          domain.Token{ID: conditionID + "-up", Side: domain.SideUp},
		Down:        domain.Token{ID: conditionID + "-down", Side: domain.SideDown},
		Active:      true,
	}
}

func newTestRotator(finder MarketFinder, cache *SnapshotCache) *Rotator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRotator(finder, cache, 15, logger)
}

func TestRotator_ResolveStoresMarkets(t *testing.T) {
	finder := &fakeFinder{markets: map[string]domain.Market{"SOL": solMarket("cond-1")}}
	cache := NewSnapshotCache("SOL-15m")
	slot := NewMarketSlot(domain.Market{})
	r := newTestRotator(finder, cache)
	r.Watch("SOL", "SOL-15m", slot)

	require.NoError(t, r.Resolve(context.Background()))
	assert.Equal(t, "cond-1", slot.Load().ConditionID)
	assert.True(t, slot.Load().Ready())
}

func TestRotator_ResolveErrorPropagates(t *testing.T) {
	finder := &fakeFinder{err: errors.New("gamma unavailable")}
	r := newTestRotator(finder, NewSnapshotCache("SOL-15m"))
	r.Watch("SOL", "SOL-15m", NewMarketSlot(domain.Market{}))

	assert.Error(t, r.Resolve(context.Background()))
}

func TestRotator_RotateSwapsMarketAndResetsCache(t *testing.T) {
	finder := &fakeFinder{markets: map[string]domain.Market{"SOL": solMarket("cond-1")}}
	cache := NewSnapshotCache("SOL-15m")
	slot := NewMarketSlot(domain.Market{})
	r := newTestRotator(finder, cache)
	r.Watch("SOL", "SOL-15m", slot)
	require.NoError(t, r.Resolve(context.Background()))

	cache.Update("SOL-15m", "cond-1", domain.SideUp, quote("cond-1-up", 470_000, 1))
	cache.Update("SOL-15m", "cond-1", domain.SideDown, quote("cond-1-down", 520_000, 1))

	// Force a period boundary and serve the next period's market.
	finder.markets["SOL"] = solMarket("cond-2")
	r.period--
	r.rotate(context.Background())

	assert.Equal(t, "cond-2", slot.Load().ConditionID)
	_, err := cache.Read("SOL-15m")
	assert.ErrorIs(t, err, domain.ErrNotReady, "old period quotes must not survive rotation")
}

func TestRotator_LaggingDiscoveryRetriesNextTick(t *testing.T) {
	finder := &fakeFinder{markets: map[string]domain.Market{"SOL": solMarket("cond-1")}}
	cache := NewSnapshotCache("SOL-15m")
	slot := NewMarketSlot(domain.Market{})
	r := newTestRotator(finder, cache)
	r.Watch("SOL", "SOL-15m", slot)
	require.NoError(t, r.Resolve(context.Background()))

	// Boundary passed but the API still returns the previous period's market.
	stale := r.period - 1
	r.period = stale
	r.rotate(context.Background())

	assert.Equal(t, "cond-1", slot.Load().ConditionID)
	assert.Equal(t, stale, r.period, "period must not advance until discovery returns a new market")

	// The API catches up; the next tick completes the rotation.
	finder.markets["SOL"] = solMarket("cond-2")
	r.rotate(context.Background())
	assert.Equal(t, "cond-2", slot.Load().ConditionID)
	assert.NotEqual(t, stale, r.period)
}

func TestRotator_DiscoveryFailureKeepsCurrentMarket(t *testing.T) {
	finder := &fakeFinder{markets: map[string]domain.Market{"SOL": solMarket("cond-1")}}
	cache := NewSnapshotCache("SOL-15m")
	slot := NewMarketSlot(domain.Market{})
	r := newTestRotator(finder, cache)
	r.Watch("SOL", "SOL-15m", slot)
	require.NoError(t, r.Resolve(context.Background()))

	cache.Update("SOL-15m", "cond-1", domain.SideUp, quote("cond-1-up", 470_000, 1))
	cache.Update("SOL-15m", "cond-1", domain.SideDown, quote("cond-1-down", 520_000, 1))

	finder.err = errors.New("gamma unavailable")
	r.period--
	r.rotate(context.Background())

	assert.Equal(t, "cond-1", slot.Load().ConditionID)
	_, err := cache.Read("SOL-15m")
	assert.NoError(t, err, "cache must stay intact when rediscovery fails")
}
