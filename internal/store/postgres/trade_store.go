package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/updownbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Legs are stored
// as JSONB; the paired trade is always written and read as one row.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

const tradeSelectCols = `id, opportunity_id, status, simulated,
	committed_ticks, expected_profit_ticks,
	snapshot_version_a, snapshot_version_b,
	legs, created_at, resolved_at`

// InsertTrade persists one resolved trade. Re-inserting the same trade ID is
// a no-op so the ledger write-through can safely retry.
func (s *TradeStore) InsertTrade(ctx context.Context, t domain.Trade) error {
	legs, err := json.Marshal(t.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs: %w", err)
	}

	const query = `
		INSERT INTO trades (
			id, opportunity_id, status, simulated,
			committed_ticks, expected_profit_ticks,
			snapshot_version_a, snapshot_version_b,
			legs, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		t.ID, t.OpportunityID, string(t.Status), t.Simulated,
		int64(t.CommittedTicks), int64(t.ExpectedProfit),
		int64(t.SnapshotVersions[0]), int64(t.SnapshotVersions[1]),
		legs, t.CreatedAt, t.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListResolvedBefore returns up to limit trades resolved before cutoff,
// oldest first. Used by the archiver to page through exportable trades.
func (s *TradeStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	const query = `
		SELECT ` + tradeSelectCols + `
		FROM trades
		WHERE resolved_at IS NOT NULL AND resolved_at < $1
		ORDER BY resolved_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan resolved trades: %w", err)
	}
	return trades, nil
}

// DeleteResolvedBefore removes trades resolved before cutoff and returns the
// number of rows deleted. Called after a successful archive export.
func (s *TradeStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE resolved_at IS NOT NULL AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete resolved trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LoadAggregate computes the ledger totals over every stored trade.
func (s *TradeStore) LoadAggregate(ctx context.Context) (domain.LedgerAggregate, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'filled'),
			COUNT(*) FILTER (WHERE status = 'partially_filled'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(committed_ticks) FILTER (WHERE status = 'filled'), 0)
				+ COALESCE(SUM(committed_ticks / 2) FILTER (WHERE status = 'partially_filled'), 0),
			COALESCE(SUM(expected_profit_ticks) FILTER (WHERE status = 'filled'), 0)
		FROM trades`

	var agg domain.LedgerAggregate
	var committed, profit int64
	err := s.pool.QueryRow(ctx, query).Scan(
		&agg.Trades, &agg.Filled, &agg.PartialFills, &agg.Rejected, &agg.Cancelled,
		&committed, &profit,
	)
	if err != nil {
		return domain.LedgerAggregate{}, fmt.Errorf("postgres: load aggregate: %w", err)
	}
	agg.Committed = domain.Ticks(committed)
	agg.ExpectedProfit = domain.Ticks(profit)
	return agg, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t          domain.Trade
			status     string
			committed  int64
			profit     int64
			versionA   int64
			versionB   int64
			legs       []byte
			resolvedAt *time.Time
		)
		if err := rows.Scan(
			&t.ID, &t.OpportunityID, &status, &t.Simulated,
			&committed, &profit, &versionA, &versionB,
			&legs, &t.CreatedAt, &resolvedAt,
		); err != nil {
			return nil, err
		}
		t.Status = domain.TradeStatus(status)
		t.CommittedTicks = domain.Ticks(committed)
		t.ExpectedProfit = domain.Ticks(profit)
		t.SnapshotVersions = [2]uint64{uint64(versionA), uint64(versionB)}
		t.ResolvedAt = resolvedAt
		if err := json.Unmarshal(legs, &t.Legs); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
