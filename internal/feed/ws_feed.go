// Package feed streams live orderbook quotes into the snapshot cache. It is
// a second cache writer alongside the REST pollers; the cache's per-token
// sequence gate resolves whichever source observed a price last.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
	"github.com/quantfold/updownbot/internal/marketdata"
	"github.com/quantfold/updownbot/internal/platform/polymarket"
)

// tokenRoute maps one subscribed token back to its cache slot.
type tokenRoute struct {
	label       string
	conditionID string
	side        domain.Side
}

// WSFeed subscribes to the book channel for both markets' tokens and writes
// top-of-book quotes into the cache. It resubscribes when rotation swaps a
// market slot.
type WSFeed struct {
	client  *polymarket.WSClient
	cache   *marketdata.SnapshotCache
	trigger chan<- struct{}
	slots   map[string]*marketdata.MarketSlot // label -> slot
	logger  *slog.Logger

	mu         sync.RWMutex
	routes     map[string]tokenRoute // token ID -> route
	subscribed map[string]string     // label -> condition ID currently subscribed
}

// NewWSFeed creates the feed over the given market slots.
func NewWSFeed(client *polymarket.WSClient, cache *marketdata.SnapshotCache, trigger chan<- struct{}, slots map[string]*marketdata.MarketSlot, logger *slog.Logger) *WSFeed {
	f := &WSFeed{
		client:     client,
		cache:      cache,
		trigger:    trigger,
		slots:      slots,
		logger:     logger.With(slog.String("component", "ws_feed")),
		routes:     make(map[string]tokenRoute),
		subscribed: make(map[string]string),
	}
	client.OnBook(f.handleBook)
	return f
}

// Run connects, subscribes to the current markets' tokens and keeps the
// subscription aligned with rotation until the context is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	if err := f.client.Connect(ctx); err != nil {
		return err
	}
	defer f.client.Close()

	f.logger.Info("websocket feed started")
	defer f.logger.Info("websocket feed stopped")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	f.syncSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.syncSubscriptions()
		}
	}
}

// syncSubscriptions resubscribes when any watched slot rotated to a new
// market.
func (f *WSFeed) syncSubscriptions() {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := false
	for label, slot := range f.slots {
		market := slot.Load()
		if !market.Ready() {
			continue
		}
		if f.subscribed[label] != market.ConditionID {
			changed = true
			break
		}
	}
	if !changed {
		return
	}

	routes := make(map[string]tokenRoute)
	subscribed := make(map[string]string)
	var assets []string
	for label, slot := range f.slots {
		market := slot.Load()
		if !market.Ready() {
			continue
		}
		routes[market.Up.ID] = tokenRoute{label: label, conditionID: market.ConditionID, side: domain.SideUp}
		routes[market.Down.ID] = tokenRoute{label: label, conditionID: market.ConditionID, side: domain.SideDown}
		assets = append(assets, market.Up.ID, market.Down.ID)
		subscribed[label] = market.ConditionID
	}
	if len(assets) == 0 {
		return
	}

	if err := f.client.Subscribe(assets); err != nil {
		f.logger.Warn("book subscription failed", slog.String("error", err.Error()))
		return
	}
	f.routes = routes
	f.subscribed = subscribed
	f.logger.Info("book subscription updated", slog.Int("tokens", len(assets)))
}

// handleBook routes one top-of-book quote into the cache.
func (f *WSFeed) handleBook(book polymarket.BookQuote) {
	f.mu.RLock()
	route, ok := f.routes[book.TokenID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	quote := domain.Quote{
		TokenID:    book.TokenID,
		AskTicks:   book.AskTicks,
		BidTicks:   book.BidTicks,
		Seq:        uint64(book.ObservedAt.UnixNano()),
		ObservedAt: book.ObservedAt,
	}
	if !f.cache.Update(route.label, route.conditionID, route.side, quote) {
		return
	}
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}
