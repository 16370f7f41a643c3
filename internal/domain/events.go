package domain

import "time"

// EventType classifies events published to the event bus for the external
// reporting/alerting layer.
type EventType string

const (
	EventOpportunityDetected EventType = "opportunity_detected"
	EventTradeSubmitted      EventType = "trade_submitted"
	EventTradeFilled         EventType = "trade_filled"
	EventTradeRejected       EventType = "trade_rejected"
	EventTradePartial        EventType = "trade_partial"
	EventTradeSettled        EventType = "trade_settled"
	// EventNakedLegExposure is emitted exactly once per partially-filled
	// trade. It is always high severity: the bot holds one leg of a pair
	// without its hedge.
	EventNakedLegExposure EventType = "naked_leg_exposure"
	EventError            EventType = "error"
)

// EventSeverity lets the alerting layer route noisy events away from pagers.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event is a structured notification published on every coordinator
// transition and qualifying detection.
type Event struct {
	ID       string            `json:"id"`
	Type     EventType         `json:"type"`
	Severity EventSeverity     `json:"severity"`
	At       time.Time         `json:"at"`
	TradeID  string            `json:"trade_id,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}
