package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
	"github.com/quantfold/updownbot/internal/marketdata"
)

// InFlightSource exposes the current in-flight trade, if any. Implemented by
// the execution coordinator.
type InFlightSource interface {
	InFlight() (domain.Trade, bool)
}

// StatusHandler serves the operational status endpoint: mode, uptime,
// watched markets, snapshot state and the in-flight trade.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	cache     *marketdata.SnapshotCache
	slots     map[string]*marketdata.MarketSlot
	inFlight  InFlightSource // nil in monitor mode
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, cache *marketdata.SnapshotCache, slots map[string]*marketdata.MarketSlot, inFlight InFlightSource) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		cache:     cache,
		slots:     slots,
		inFlight:  inFlight,
	}
}

type marketStatus struct {
	Label       string `json:"label"`
	Slug        string `json:"slug"`
	ConditionID string `json:"condition_id"`
	Ready       bool   `json:"ready"`
	UpAsk       string `json:"up_ask,omitempty"`
	DownAsk     string `json:"down_ask,omitempty"`
	Version     uint64 `json:"version,omitempty"`
}

// Status reports the bot's operational state.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	markets := make([]marketStatus, 0, len(h.slots))
	for label, slot := range h.slots {
		market := slot.Load()
		ms := marketStatus{
			Label:       label,
			Slug:        market.Slug,
			ConditionID: market.ConditionID,
		}
		snap, err := h.cache.Read(label)
		if err == nil {
			ms.Ready = true
			ms.UpAsk = snap.Up.AskTicks.String()
			ms.DownAsk = snap.Down.AskTicks.String()
			ms.Version = snap.Version
		} else if !errors.Is(err, domain.ErrNotReady) && !errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		markets = append(markets, ms)
	}

	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"markets":        markets,
	}
	if h.inFlight != nil {
		if trade, ok := h.inFlight.InFlight(); ok {
			resp["in_flight"] = trade
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
