package marketdata

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/updownbot/internal/domain"
)

func quote(tokenID string, ask domain.Ticks, seq uint64) domain.Quote {
	return domain.Quote{
		TokenID:    tokenID,
		AskTicks:   ask,
		Seq:        seq,
		ObservedAt: time.Now().UTC(),
	}
}

func TestCache_ReadBeforeAnyUpdate(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")

	_, err := c.Read("SOL-15m")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestCache_ReadUnknownLabel(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")

	_, err := c.Read("BTC-15m")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCache_NotReadyUntilBothSidesQuoted(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")

	changed := c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 470_000, 1))
	assert.True(t, changed)

	_, err := c.Read("SOL-15m")
	assert.ErrorIs(t, err, domain.ErrNotReady)

	c.Update("SOL-15m", "cond-1", domain.SideDown, quote("tok-down", 520_000, 1))

	snap, err := c.Read("SOL-15m")
	require.NoError(t, err)
	assert.Equal(t, domain.Ticks(470_000), snap.Up.AskTicks)
	assert.Equal(t, domain.Ticks(520_000), snap.Down.AskTicks)
}

func TestCache_OutOfOrderUpdateDropped(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")
	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 470_000, 10))
	c.Update("SOL-15m", "cond-1", domain.SideDown, quote("tok-down", 520_000, 10))

	changed := c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 450_000, 5))
	assert.False(t, changed)

	snap, err := c.Read("SOL-15m")
	require.NoError(t, err)
	assert.Equal(t, domain.Ticks(470_000), snap.Up.AskTicks, "older seq must not overwrite newer quote")
}

func TestCache_EqualSeqDropped(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")
	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 470_000, 10))

	changed := c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 480_000, 10))
	assert.False(t, changed)
}

func TestCache_VersionAdvancesOnEveryChange(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")
	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 470_000, 1))
	c.Update("SOL-15m", "cond-1", domain.SideDown, quote("tok-down", 520_000, 1))

	snap1, err := c.Read("SOL-15m")
	require.NoError(t, err)

	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 480_000, 2))
	snap2, err := c.Read("SOL-15m")
	require.NoError(t, err)

	assert.Greater(t, snap2.Version, snap1.Version)
}

func TestCache_ConditionIDChangeDiscardsOldPair(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")
	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 470_000, 1))
	c.Update("SOL-15m", "cond-1", domain.SideDown, quote("tok-down", 520_000, 1))

	// New period: first quote arrives under a new condition ID. The old
	// pair must not survive alongside it.
	c.Update("SOL-15m", "cond-2", domain.SideUp, quote("tok-up-2", 500_000, 2))

	_, err := c.Read("SOL-15m")
	assert.ErrorIs(t, err, domain.ErrNotReady, "half-quoted new period must not read as ready")
}

func TestCache_ResetClearsSlot(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")
	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 470_000, 1))
	c.Update("SOL-15m", "cond-1", domain.SideDown, quote("tok-down", 520_000, 1))

	c.Reset("SOL-15m")

	_, err := c.Read("SOL-15m")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestCache_SnapshotImmutableForReaders(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")
	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 470_000, 1))
	c.Update("SOL-15m", "cond-1", domain.SideDown, quote("tok-down", 520_000, 1))

	before, err := c.Read("SOL-15m")
	require.NoError(t, err)

	c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", 999_000, 2))

	assert.Equal(t, domain.Ticks(470_000), before.Up.AskTicks, "loaded snapshot must not change under the reader")
}

func TestCache_ConcurrentWritersNeverHalfUpdate(t *testing.T) {
	c := NewSnapshotCache("SOL-15m")

	const writes = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			c.Update("SOL-15m", "cond-1", domain.SideUp, quote("tok-up", domain.Ticks(400_000+i), uint64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			c.Update("SOL-15m", "cond-1", domain.SideDown, quote("tok-down", domain.Ticks(500_000+i), uint64(i)))
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			snap, err := c.Read("SOL-15m")
			require.NoError(t, err)
			assert.Equal(t, domain.Ticks(400_000+writes), snap.Up.AskTicks)
			assert.Equal(t, domain.Ticks(500_000+writes), snap.Down.AskTicks)
			return
		default:
			snap, err := c.Read("SOL-15m")
			if err == nil {
				// Whichever interleaving, a ready snapshot always carries a
				// valid quote on both sides.
				assert.True(t, snap.Up.Valid())
				assert.True(t, snap.Down.Valid())
			}
		}
	}
}
