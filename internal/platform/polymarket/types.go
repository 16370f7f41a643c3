package polymarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent is an event as returned by the Gamma API. Up/down period events
// hold exactly one market.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  bool        `json:"closed"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket is a market as returned by the Gamma API. Outcomes and token IDs
// arrive as JSON-encoded string arrays inside string fields.
type APIMarket struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	ConditionID  string   `json:"conditionId"`
	Slug         string   `json:"slug"`
	Active       flexBool `json:"active"`
	Closed       bool     `json:"closed"`
	EndDateISO   string   `json:"endDateIso"`
	Outcomes     string   `json:"outcomes"`     // e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs string   `json:"clobTokenIds"` // e.g. "[\"123\",\"456\"]"
}

// ToDomainMarket converts a Gamma market to a domain.Market with the given
// label. Token IDs and outcome names are positional: the nested arrays are
// index-aligned.
func (m *APIMarket) ToDomainMarket(label string) (domain.Market, error) {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.Market{}, err
	}
	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Market{}, err
	}
	if len(outcomes) != len(tokenIDs) || len(outcomes) < 2 {
		return domain.Market{}, domain.ErrNotFound
	}

	dm := domain.Market{
		ConditionID: m.ConditionID,
		Label:       label,
		Slug:        m.Slug,
		Active:      bool(m.Active),
		Closed:      m.Closed,
	}
	for i, outcome := range outcomes {
		token := domain.Token{ID: tokenIDs[i]}
		switch strings.ToLower(outcome) {
		case "up", "yes":
			token.Side = domain.SideUp
			dm.Up = token
		case "down", "no":
			token.Side = domain.SideDown
			dm.Down = token
		}
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		dm.EndDate = t
	}
	if !dm.Ready() {
		return domain.Market{}, domain.ErrNotFound
	}
	return dm, nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPrice is the response of the CLOB /price endpoint.
type APIPrice struct {
	Price string `json:"price"`
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// APIMarketDetails is the market record served by the CLOB markets endpoint,
// carrying the resolution flags the settlement sweep needs.
type APIMarketDetails struct {
	ConditionID     string           `json:"condition_id"`
	Active          bool             `json:"active"`
	Closed          bool             `json:"closed"`
	AcceptingOrders bool             `json:"accepting_orders"`
	Tokens          []APIMarketToken `json:"tokens"`
}

// APIMarketToken is one outcome token inside a CLOB market record.
type APIMarketToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// APIOrder is an order as returned by the CLOB order query endpoint.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to the market channel to subscribe.
type WSCommand struct {
	Type   string   `json:"type"` // "subscribe" or "unsubscribe"
	Assets []string `json:"assets_ids,omitempty"`
}

// WSBookMessage is a full orderbook snapshot delivered over WebSocket.
type WSBookMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
