package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
)

// archiveBatchSize caps how many trades one export cycle reads.
const archiveBatchSize = 5000

// Archiver periodically exports resolved trades older than the retention
// window to JSONL objects and prunes them from the primary store. The
// export is written and only then deleted, so a failed upload never loses
// trades.
type Archiver struct {
	writer    domain.BlobWriter
	store     domain.TradeStore
	retention time.Duration
	interval  time.Duration
	prefix    string
	logger    *slog.Logger
}

// NewArchiver creates an archiver that keeps trades in the store for the
// retention window and exports the rest every interval.
func NewArchiver(writer domain.BlobWriter, store domain.TradeStore, retention, interval time.Duration, prefix string, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = "trades"
	}
	return &Archiver{
		writer:    writer,
		store:     store,
		retention: retention,
		interval:  interval,
		prefix:    prefix,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run exports on the configured interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Error("archive cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOnce exports one batch of trades past retention and prunes them.
// A cycle with nothing to export is a no-op.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)

	trades, err := a.store.ListResolvedBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return fmt.Errorf("s3blob: list trades for archive: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("s3blob: encode trade %s: %w", t.ID, err)
		}
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%04d/%02d/%02d-%d.jsonl",
		a.prefix, now.Year(), now.Month(), now.Day(), now.Unix())
	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: upload archive: %w", err)
	}

	// Prune only up to the newest exported trade so trades resolved between
	// the list and the delete survive for the next cycle.
	lastResolved := cutoff
	if last := trades[len(trades)-1].ResolvedAt; last != nil {
		lastResolved = last.Add(time.Millisecond)
	}
	deleted, err := a.store.DeleteResolvedBefore(ctx, lastResolved)
	if err != nil {
		return fmt.Errorf("s3blob: prune archived trades: %w", err)
	}

	a.logger.Info("trades archived",
		slog.Int("exported", len(trades)),
		slog.Int64("pruned", deleted),
		slog.String("key", key))
	return nil
}
