package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/updownbot/internal/domain"
)

// fakeVenue scripts per-token behavior: submit errors and fill outcomes.
type fakeVenue struct {
	mu          sync.Mutex
	submitErr   map[string]error      // token ID -> submission failure
	fillState   map[string]OrderState // token ID -> state reported after ack
	statusErr   error                 // returned by every OrderStatus call
	submitted   []OrderRequest
	cancelled   []string
	orderTokens map[string]string // order ID -> token ID
	nextOrder   int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		submitErr:   map[string]error{},
		fillState:   map[string]OrderState{},
		orderTokens: map[string]string{},
	}
}

func (v *fakeVenue) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitted = append(v.submitted, req)
	if err := v.submitErr[req.TokenID]; err != nil {
		return "", err
	}
	v.nextOrder++
	orderID := fmt.Sprintf("order-%d", v.nextOrder)
	v.orderTokens[orderID] = req.TokenID
	return orderID, nil
}

func (v *fakeVenue) OrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.statusErr != nil {
		return "", v.statusErr
	}
	state, ok := v.fillState[v.orderTokens[orderID]]
	if !ok {
		return OrderStateOpen, nil
	}
	return state, nil
}

func (v *fakeVenue) CancelOrder(ctx context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelled = append(v.cancelled, orderID)
	return nil
}

func (v *fakeVenue) cancelCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cancelled)
}

type fakeRecorder struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (r *fakeRecorder) Append(ctx context.Context, trade domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
	return nil
}

func (r *fakeRecorder) recorded() []domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Trade(nil), r.trades...)
}

type fakeBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *fakeBus) PublishEvent(ctx context.Context, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBus) SubscribeEvents(ctx context.Context) (<-chan domain.Event, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBus) countType(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID: "opp-1",
		Legs: [2]domain.Leg{
			{
				MarketLabel: "SOL-15m",
				ConditionID: "cond-a",
				Token:       domain.Token{ID: "tok-a", Side: domain.SideUp},
				AskTicks:    domain.TicksFromFloat(0.47),
			},
			{
				MarketLabel: "BTC-15m",
				ConditionID: "cond-b",
				Token:       domain.Token{ID: "tok-b", Side: domain.SideDown},
				AskTicks:    domain.TicksFromFloat(0.40),
			},
		},
		CombinedCost:     domain.TicksFromFloat(0.87),
		Profit:           domain.TicksFromFloat(0.13),
		DetectedAt:       time.Now().UTC(),
		SnapshotVersions: [2]uint64{3, 7},
	}
}

func testOptions() Options {
	return Options{
		MaxPositionTicks: domain.TicksFromFloat(100),
		SubmitTimeout:    time.Second,
		FillTimeout:      150 * time.Millisecond,
		FillPoll:         10 * time.Millisecond,
		SettleGrace:      time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinator_BothLegsFill(t *testing.T) {
	venue := newFakeVenue()
	venue.fillState["tok-a"] = OrderStateFilled
	venue.fillState["tok-b"] = OrderStateFilled
	recorder := &fakeRecorder{}
	bus := &fakeBus{}
	c := NewCoordinator(venue, recorder, bus, testOptions(), discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	trades := recorder.recorded()
	require.Len(t, trades, 1)
	trade := trades[0]
	assert.Equal(t, domain.TradeStatusFilled, trade.Status)
	assert.Equal(t, 2, trade.FilledLegs())
	require.NotNil(t, trade.ResolvedAt)
	assert.Equal(t, 0, venue.cancelCount())
	assert.Equal(t, 1, bus.countType(domain.EventTradeSubmitted))
	assert.Equal(t, 1, bus.countType(domain.EventTradeFilled))
	assert.Equal(t, 0, bus.countType(domain.EventNakedLegExposure))

	_, busy := c.InFlight()
	assert.False(t, busy, "slot must be released after resolution")
}

func TestCoordinator_Sizing(t *testing.T) {
	venue := newFakeVenue()
	venue.fillState["tok-a"] = OrderStateFilled
	venue.fillState["tok-b"] = OrderStateFilled
	recorder := &fakeRecorder{}
	c := NewCoordinator(venue, recorder, nil, testOptions(), discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	trades := recorder.recorded()
	require.Len(t, trades, 1)
	// $100 ceiling at $0.87 per pair buys 114.942528 tokens of each leg.
	wantSize := int64(100_000_000) * 1_000_000 / 870_000
	assert.Equal(t, wantSize, trades[0].Legs[0].SizeUnits)
	assert.Equal(t, wantSize, trades[0].Legs[1].SizeUnits)
	assert.Equal(t, trades[0].Legs[0].SizeUnits, trades[0].Legs[1].SizeUnits,
		"both legs must carry equal quantity so the pair settles flat")
	assert.LessOrEqual(t, trades[0].CommittedTicks, domain.TicksFromFloat(100))
}

func TestCoordinator_SubmissionFailureRejectsAndCancelsOtherLeg(t *testing.T) {
	venue := newFakeVenue()
	venue.submitErr["tok-b"] = errors.New("insufficient balance")
	recorder := &fakeRecorder{}
	bus := &fakeBus{}
	c := NewCoordinator(venue, recorder, bus, testOptions(), discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	trades := recorder.recorded()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeStatusRejected, trades[0].Status)
	// The leg that acked must have been cancelled.
	assert.Equal(t, 1, venue.cancelCount())
	assert.Equal(t, 0, bus.countType(domain.EventNakedLegExposure))
}

func TestCoordinator_PartialFillEmitsOneNakedLegEvent(t *testing.T) {
	venue := newFakeVenue()
	venue.fillState["tok-a"] = OrderStateFilled
	venue.fillState["tok-b"] = OrderStateOpen // never fills
	recorder := &fakeRecorder{}
	bus := &fakeBus{}
	c := NewCoordinator(venue, recorder, bus, testOptions(), discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	trades := recorder.recorded()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeStatusPartiallyFilled, trades[0].Status)
	assert.Equal(t, 1, trades[0].FilledLegs())
	assert.Equal(t, 1, venue.cancelCount(), "unfilled leg must be cancelled")
	assert.Equal(t, 1, bus.countType(domain.EventNakedLegExposure))
	assert.Equal(t, 1, bus.countType(domain.EventTradePartial))
}

func TestCoordinator_FlattenPartialSellsFilledLeg(t *testing.T) {
	venue := newFakeVenue()
	venue.fillState["tok-a"] = OrderStateFilled
	venue.fillState["tok-b"] = OrderStateOpen
	recorder := &fakeRecorder{}
	opts := testOptions()
	opts.FlattenPartial = true
	c := NewCoordinator(venue, recorder, nil, opts, discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	venue.mu.Lock()
	defer venue.mu.Unlock()
	var sells []OrderRequest
	for _, req := range venue.submitted {
		if req.Action == ActionSell {
			sells = append(sells, req)
		}
	}
	require.Len(t, sells, 1)
	assert.Equal(t, "tok-a", sells[0].TokenID)
}

func TestCoordinator_FillTimeoutNothingFilledRejects(t *testing.T) {
	venue := newFakeVenue()
	venue.fillState["tok-a"] = OrderStateOpen
	venue.fillState["tok-b"] = OrderStateOpen
	recorder := &fakeRecorder{}
	bus := &fakeBus{}
	c := NewCoordinator(venue, recorder, bus, testOptions(), discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	trades := recorder.recorded()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeStatusRejected, trades[0].Status)
	assert.Equal(t, 2, venue.cancelCount())
	assert.Equal(t, 0, bus.countType(domain.EventNakedLegExposure))
}

func TestCoordinator_UnresponsiveVenueRejectsAfterTimeout(t *testing.T) {
	venue := newFakeVenue()
	venue.statusErr = errors.New("gateway timeout")
	recorder := &fakeRecorder{}
	bus := &fakeBus{}
	c := NewCoordinator(venue, recorder, bus, testOptions(), discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	trades := recorder.recorded()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeStatusRejected, trades[0].Status,
		"a venue that never answers status checks must still resolve the trade")
	assert.Equal(t, 0, trades[0].FilledLegs())
	assert.Equal(t, 2, venue.cancelCount(), "both acked legs must be cancelled")
	assert.Equal(t, 0, bus.countType(domain.EventNakedLegExposure))
}

func TestCoordinator_SingleInFlightSlot(t *testing.T) {
	venue := newFakeVenue()
	venue.fillState["tok-a"] = OrderStateOpen
	venue.fillState["tok-b"] = OrderStateOpen
	recorder := &fakeRecorder{}
	c := NewCoordinator(venue, recorder, nil, testOptions(), discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	assert.False(t, c.TrySubmit(context.Background(), testOpportunity()),
		"second opportunity must be dropped while a trade is in flight")

	_, busy := c.InFlight()
	assert.True(t, busy)

	c.Wait()
	require.Len(t, recorder.recorded(), 1, "dropped opportunity must never execute")

	// Slot free again after resolution.
	assert.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()
}

func TestCoordinator_TooExpensiveOpportunitySkipped(t *testing.T) {
	venue := newFakeVenue()
	recorder := &fakeRecorder{}
	opts := testOptions()
	opts.MaxPositionTicks = 0
	c := NewCoordinator(venue, recorder, nil, opts, discardLogger())

	assert.False(t, c.TrySubmit(context.Background(), testOpportunity()))
	assert.Empty(t, recorder.recorded())
}

func TestCoordinator_SimulatedFlagCarriesToTrade(t *testing.T) {
	venue := newFakeVenue()
	venue.fillState["tok-a"] = OrderStateFilled
	venue.fillState["tok-b"] = OrderStateFilled
	recorder := &fakeRecorder{}
	opts := testOptions()
	opts.Simulated = true
	c := NewCoordinator(venue, recorder, nil, opts, discardLogger())

	require.True(t, c.TrySubmit(context.Background(), testOpportunity()))
	c.Wait()

	trades := recorder.recorded()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Simulated)
}
