// Package exec drives paired-order execution. At most one trade is in flight
// at any moment; opportunities arriving while the slot is busy are dropped by
// the caller, never queued.
package exec

import (
	"context"

	"github.com/quantfold/updownbot/internal/domain"
)

// OrderState is the venue-side lifecycle of a single order.
type OrderState string

const (
	OrderStateOpen      OrderState = "open"
	OrderStateFilled    OrderState = "filled"
	OrderStateCancelled OrderState = "cancelled"
	OrderStateRejected  OrderState = "rejected"
)

// OrderAction distinguishes entry orders from flattening exits.
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// OrderRequest is one order as the coordinator hands it to the venue.
type OrderRequest struct {
	TokenID    string
	Action     OrderAction
	PriceTicks domain.Ticks
	SizeUnits  int64
}

// Venue places and tracks orders. Implemented by platform/polymarket in
// production and by SimulatedVenue in simulation.
type Venue interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	OrderStatus(ctx context.Context, orderID string) (OrderState, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Recorder receives every resolved trade. Implemented by ledger.Ledger.
type Recorder interface {
	Append(ctx context.Context, trade domain.Trade) error
}
