// Package marketdata holds the market snapshot cache and the pollers that
// feed it. The cache publishes immutable whole-pair snapshots through atomic
// pointer replacement so readers never observe a half-updated pair and never
// block on a write in progress.
package marketdata

import (
	"sync/atomic"

	"github.com/quantfold/updownbot/internal/domain"
)

// SnapshotCache holds the latest quote pair for each of the two watched
// markets. One slot per market label; each slot is replaced atomically as a
// whole. Safe for concurrent writers (one poller per market, plus the
// optional websocket feed) and any number of readers.
type SnapshotCache struct {
	slots map[string]*atomic.Pointer[domain.Snapshot]
}

// NewSnapshotCache creates a cache with one empty slot per market label.
func NewSnapshotCache(labels ...string) *SnapshotCache {
	slots := make(map[string]*atomic.Pointer[domain.Snapshot], len(labels))
	for _, l := range labels {
		slots[l] = &atomic.Pointer[domain.Snapshot]{}
	}
	return &SnapshotCache{slots: slots}
}

// Update replaces the stored quote for one side of the given market, but only
// when the quote's sequence number is newer than what is already stored for
// that token. The pair is replaced as a whole new Snapshot value; the old one
// stays valid for readers that already loaded it.
//
// Returns true when the cache changed.
func (c *SnapshotCache) Update(label string, conditionID string, side domain.Side, quote domain.Quote) bool {
	slot, ok := c.slots[label]
	if !ok {
		return false
	}
	for {
		cur := slot.Load()

		next := domain.Snapshot{MarketLabel: label, ConditionID: conditionID}
		if cur != nil && cur.ConditionID == conditionID {
			next = *cur
		}

		prev := next.Up
		if side == domain.SideDown {
			prev = next.Down
		}
		if prev.Valid() && quote.Seq <= prev.Seq {
			return false // out-of-order update, keep the newer quote
		}

		if side == domain.SideUp {
			next.Up = quote
		} else {
			next.Down = quote
		}
		next.Version++

		if slot.CompareAndSwap(cur, &next) {
			return true
		}
		// Lost the race against the other writer; retry on the fresh pair.
	}
}

// Read returns the latest snapshot for the market, or domain.ErrNotReady
// when the market has no complete pair yet. Readers never block.
func (c *SnapshotCache) Read(label string) (domain.Snapshot, error) {
	slot, ok := c.slots[label]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	cur := slot.Load()
	if cur == nil || !cur.Ready() {
		return domain.Snapshot{}, domain.ErrNotReady
	}
	return *cur, nil
}

// Reset clears the market's slot. Called on period rotation so quotes from
// the previous market can never pair with the new one.
func (c *SnapshotCache) Reset(label string) {
	if slot, ok := c.slots[label]; ok {
		slot.Store(nil)
	}
}
