package exec

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/updownbot/internal/domain"
)

// SimulatedVenue mimics the exchange for dry runs: every order is acked
// immediately and fills at its limit price after a fixed latency. No capital
// moves.
type SimulatedVenue struct {
	latency time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	orders map[string]simOrder
}

type simOrder struct {
	req      OrderRequest
	ackedAt  time.Time
	canceled bool
}

// NewSimulatedVenue creates a paper-trading venue with the given fill
// latency.
func NewSimulatedVenue(latency time.Duration, logger *slog.Logger) *SimulatedVenue {
	return &SimulatedVenue{
		latency: latency,
		logger:  logger.With(slog.String("component", "sim_venue")),
		orders:  make(map[string]simOrder),
	}
}

var _ Venue = (*SimulatedVenue)(nil)

func (v *SimulatedVenue) SubmitOrder(_ context.Context, req OrderRequest) (string, error) {
	id := uuid.NewString()
	v.mu.Lock()
	v.orders[id] = simOrder{req: req, ackedAt: time.Now()}
	v.mu.Unlock()
	v.logger.Info("simulated order placed",
		slog.String("order_id", id),
		slog.String("token_id", req.TokenID),
		slog.String("action", string(req.Action)),
		slog.String("price", req.PriceTicks.String()),
		slog.Int64("size_units", req.SizeUnits))
	return id, nil
}

func (v *SimulatedVenue) OrderStatus(_ context.Context, orderID string) (OrderState, error) {
	v.mu.Lock()
	order, ok := v.orders[orderID]
	v.mu.Unlock()
	if !ok {
		return "", domain.ErrNotFound
	}
	if order.canceled {
		return OrderStateCancelled, nil
	}
	if time.Since(order.ackedAt) >= v.latency {
		return OrderStateFilled, nil
	}
	return OrderStateOpen, nil
}

func (v *SimulatedVenue) CancelOrder(_ context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	order, ok := v.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	order.canceled = true
	v.orders[orderID] = order
	return nil
}
