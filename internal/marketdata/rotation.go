package marketdata

import (
	"context"
	"log/slog"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
)

// MarketFinder resolves the currently active up/down market for an asset.
// Implemented by platform/polymarket against the Gamma API.
type MarketFinder interface {
	FindMarket(ctx context.Context, asset string, windowMinutes int) (domain.Market, error)
}

// watchedMarket binds one asset to the slot its poller reads from.
type watchedMarket struct {
	asset string
	label string
	slot  *MarketSlot
}

// Rotator tracks the fixed trading window and swaps both market slots to the
// next period's markets when the boundary passes. Stale cache slots are reset
// so the evaluator never pairs quotes across periods.
type Rotator struct {
	finder   MarketFinder
	cache    *SnapshotCache
	window   time.Duration
	watched  []watchedMarket
	interval time.Duration
	logger   *slog.Logger

	period int64 // unix period index currently resolved
}

// NewRotator creates a rotator over the given market slots.
func NewRotator(finder MarketFinder, cache *SnapshotCache, windowMinutes int, logger *slog.Logger) *Rotator {
	return &Rotator{
		finder:   finder,
		cache:    cache,
		window:   time.Duration(windowMinutes) * time.Minute,
		interval: time.Minute,
		logger:   logger.With(slog.String("component", "rotator")),
	}
}

// Watch registers an asset and the slot to swap on rotation. Must be called
// before Run.
func (r *Rotator) Watch(asset, label string, slot *MarketSlot) {
	r.watched = append(r.watched, watchedMarket{asset: asset, label: label, slot: slot})
}

// Resolve performs the initial market discovery for every watched asset.
// Called once at startup before the pollers begin.
func (r *Rotator) Resolve(ctx context.Context) error {
	r.period = r.periodIndex(time.Now().UTC())
	for _, w := range r.watched {
		market, err := r.finder.FindMarket(ctx, w.asset, int(r.window.Minutes()))
		if err != nil {
			return err
		}
		w.slot.Store(market)
		r.logger.Info("market resolved",
			slog.String("market", w.label),
			slog.String("slug", market.Slug),
			slog.String("condition_id", market.ConditionID))
	}
	return nil
}

// Run checks for period boundaries until the context is cancelled.
func (r *Rotator) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.rotate(ctx)
		}
	}
}

func (r *Rotator) rotate(ctx context.Context) {
	now := time.Now().UTC()
	idx := r.periodIndex(now)
	if idx == r.period {
		return
	}

	r.logger.Info("trading period rolled over, rediscovering markets",
		slog.Int64("period", idx))

	for _, w := range r.watched {
		market, err := r.finder.FindMarket(ctx, w.asset, int(r.window.Minutes()))
		if err != nil {
			// Keep the old period index so the next tick retries discovery.
			r.logger.Warn("market rediscovery failed",
				slog.String("market", w.label),
				slog.String("error", err.Error()))
			return
		}
		current := w.slot.Load()
		if market.ConditionID == current.ConditionID {
			// Gamma can lag a few seconds past the boundary; retry next tick.
			r.logger.Debug("discovery returned previous period market, retrying",
				slog.String("market", w.label))
			return
		}
		w.slot.Store(market)
		r.cache.Reset(w.label)
		r.logger.Info("market rotated",
			slog.String("market", w.label),
			slog.String("slug", market.Slug),
			slog.String("condition_id", market.ConditionID))
	}
	r.period = idx
}

func (r *Rotator) periodIndex(t time.Time) int64 {
	return t.Unix() / int64(r.window.Seconds())
}
