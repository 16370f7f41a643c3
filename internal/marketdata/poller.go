package marketdata

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
)

// QuoteSource fetches the current best quotes for both sides of a market.
// Implemented by platform/polymarket and by test fakes.
type QuoteSource interface {
	BestQuotes(ctx context.Context, market domain.Market) (up, down domain.Quote, err error)
}

// MarketSlot is the atomically swappable handle to the market a poller is
// currently watching. The rotator stores a new Market on period change; the
// poller loads it at the top of every cycle.
type MarketSlot struct {
	ptr atomic.Pointer[domain.Market]
}

// NewMarketSlot creates a slot holding the given market.
func NewMarketSlot(m domain.Market) *MarketSlot {
	s := &MarketSlot{}
	s.ptr.Store(&m)
	return s
}

// Load returns the current market.
func (s *MarketSlot) Load() domain.Market {
	return *s.ptr.Load()
}

// Store replaces the current market.
func (s *MarketSlot) Store(m domain.Market) {
	s.ptr.Store(&m)
}

// RateQuota bounds outbound quote fetches when a distributed limiter is
// wired in.
type RateQuota struct {
	Limit  int
	Window time.Duration
}

// Poller refreshes the snapshot cache for one market on a fixed interval and
// nudges the shared evaluation trigger after every successful update.
// Transient fetch failures are absorbed: they cost one cycle of detection
// latency, nothing more.
type Poller struct {
	label    string
	slot     *MarketSlot
	source   QuoteSource
	cache    *SnapshotCache
	trigger  chan<- struct{}
	interval time.Duration
	timeout  time.Duration
	limiter  domain.RateLimiter // optional; nil disables pacing
	quota    RateQuota
	logger   *slog.Logger
}

// NewPoller creates a poller for the market held in slot. trigger must be a
// buffered channel shared with the evaluation loop; sends are non-blocking.
func NewPoller(label string, slot *MarketSlot, source QuoteSource, cache *SnapshotCache, trigger chan<- struct{}, interval time.Duration, limiter domain.RateLimiter, quota RateQuota, logger *slog.Logger) *Poller {
	return &Poller{
		label:    label,
		slot:     slot,
		source:   source,
		cache:    cache,
		trigger:  trigger,
		interval: interval,
		timeout:  interval * 2,
		limiter:  limiter,
		quota:    quota,
		logger:   logger.With(slog.String("component", "poller"), slog.String("market", label)),
	}
}

// Run polls until the context is cancelled. It never returns a fetch error;
// only context cancellation ends the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", slog.Duration("interval", p.interval))
	defer p.logger.Info("poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First poll immediately so the market becomes ready without waiting a
	// full interval.
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	market := p.slot.Load()
	if !market.Ready() {
		p.logger.Debug("market not resolved yet, skipping cycle")
		return
	}

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, "quotes:"+p.label, p.quota.Limit, p.quota.Window)
		if err == nil && !allowed {
			p.logger.Debug("quote fetch rate limited, skipping cycle")
			return
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	up, down, err := p.source.BestQuotes(fetchCtx, market)
	cancel()
	if err != nil {
		// Transient failure: absorbed, detection delayed one cycle.
		p.logger.Warn("quote fetch failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	if up.ObservedAt.IsZero() {
		up.ObservedAt = now
	}
	if down.ObservedAt.IsZero() {
		down.ObservedAt = now
	}
	// Seq derives from observation time so the REST poller and the
	// websocket feed share one ordering per token.
	up.Seq = uint64(up.ObservedAt.UnixNano())
	down.Seq = uint64(down.ObservedAt.UnixNano())

	changed := p.cache.Update(p.label, market.ConditionID, domain.SideUp, up)
	changed = p.cache.Update(p.label, market.ConditionID, domain.SideDown, down) || changed

	if changed {
		// Non-blocking: a pending trigger already covers this refresh.
		select {
		case p.trigger <- struct{}{}:
		default:
		}
	}
}
