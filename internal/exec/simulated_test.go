package exec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/updownbot/internal/domain"
)

func simRequest() OrderRequest {
	return OrderRequest{
		TokenID:    "tok-a",
		Action:     ActionBuy,
		PriceTicks: domain.TicksFromFloat(0.47),
		SizeUnits:  1_000_000,
	}
}

func TestSimulatedVenue_FillsAfterLatency(t *testing.T) {
	v := NewSimulatedVenue(20*time.Millisecond, discardLogger())
	ctx := context.Background()

	orderID, err := v.SubmitOrder(ctx, simRequest())
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	state, err := v.OrderStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStateOpen, state)

	time.Sleep(30 * time.Millisecond)

	state, err = v.OrderStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStateFilled, state)
}

func TestSimulatedVenue_Cancel(t *testing.T) {
	v := NewSimulatedVenue(time.Minute, discardLogger())
	ctx := context.Background()

	orderID, err := v.SubmitOrder(ctx, simRequest())
	require.NoError(t, err)
	require.NoError(t, v.CancelOrder(ctx, orderID))

	state, err := v.OrderStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStateCancelled, state)
}

func TestSimulatedVenue_UnknownOrder(t *testing.T) {
	v := NewSimulatedVenue(time.Minute, discardLogger())

	_, err := v.OrderStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, v.CancelOrder(context.Background(), "missing"), domain.ErrNotFound)
}
