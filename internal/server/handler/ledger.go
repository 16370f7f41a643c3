package handler

import (
	"net/http"

	"github.com/quantfold/updownbot/internal/ledger"
)

// LedgerHandler serves the resolved trade history and session aggregates.
type LedgerHandler struct {
	ledger *ledger.Ledger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(l *ledger.Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// Aggregate reports the running totals.
// GET /api/ledger
func (h *LedgerHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	agg := h.ledger.Aggregate()
	writeJSON(w, http.StatusOK, map[string]any{
		"trades":          agg.Trades,
		"filled":          agg.Filled,
		"partial_fills":   agg.PartialFills,
		"rejected":        agg.Rejected,
		"cancelled":       agg.Cancelled,
		"settled":         agg.Settled,
		"committed":       agg.Committed.String(),
		"expected_profit": agg.ExpectedProfit.String(),
		"realized_profit": agg.RealizedProfit.String(),
	})
}

// Recent returns the most recent resolved trades, newest first.
// GET /api/ledger/trades?limit=N
func (h *LedgerHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)
	writeJSON(w, http.StatusOK, h.ledger.Resolved(limit))
}

// RecentSettlements returns the most recent settlements, newest first.
// GET /api/ledger/settlements?limit=N
func (h *LedgerHandler) RecentSettlements(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)
	writeJSON(w, http.StatusOK, h.ledger.Settlements(limit))
}
