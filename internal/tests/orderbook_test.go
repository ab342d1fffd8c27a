package tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"bourse/internal/domain"
	"bourse/internal/engine"
	"bourse/internal/persistence"
	"bourse/internal/registry"
)

// discardSink satisfies engine.Sink without touching a real queue;
// these tests only care about in-memory matching behavior.
type discardSink struct{}

func (discardSink) Enqueue(persistence.Event) {}

func newTestEngine(t *testing.T) (*engine.Engine, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	eng := engine.New(reg, discardSink{}, nil, 0)
	t.Cleanup(eng.Close)
	return eng, reg
}

func registerBroker(reg *registry.Registry) domain.Broker {
	b := domain.Broker{ID: uuid.New()}
	reg.Register(&b)
	return b
}

func limitOrder(eng *engine.Engine, broker domain.Broker, side domain.Side, price int64, qty uint64) (uuid.UUID, []*domain.Trade) {
	return eng.SubmitOrder(engine.NewOrderInput{
		BrokerID:   broker.ID,
		Side:       side,
		Type:       domain.Limit,
		Symbol:     "AAPL",
		Price:      price,
		Quantity:   qty,
		ValidUntil: time.Now().Add(time.Hour),
	})
}

func TestPlaceOrder_RestsAtOnePriceLevel(t *testing.T) {
	eng, reg := newTestEngine(t)
	broker := registerBroker(reg)

	for _, qty := range []uint64{100, 90, 80} {
		_, trades := limitOrder(eng, broker, domain.Bid, 9900, qty)
		assert.Empty(t, trades)
	}
	for _, qty := range []uint64{100, 90, 80} {
		_, trades := limitOrder(eng, broker, domain.Ask, 10000, qty)
		assert.Empty(t, trades)
	}

	view, err := eng.OrderBook("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, view.Bids, 1)
	require.Len(t, view.Asks, 1)
	assert.Equal(t, int64(9900), view.Bids[0].Price)
	assert.Equal(t, uint64(270), view.Bids[0].TotalQty)
	assert.Equal(t, int64(10000), view.Asks[0].Price)
	assert.Equal(t, uint64(270), view.Asks[0].TotalQty)
}

func TestPlaceOrder_MultipleLevelsOrderedByPricePriority(t *testing.T) {
	eng, reg := newTestEngine(t)
	broker := registerBroker(reg)

	limitOrder(eng, broker, domain.Bid, 9900, 100)
	limitOrder(eng, broker, domain.Bid, 9800, 50)
	limitOrder(eng, broker, domain.Ask, 10000, 100)
	limitOrder(eng, broker, domain.Ask, 10100, 20)

	view, err := eng.OrderBook("AAPL", 10)
	require.NoError(t, err)

	require.Len(t, view.Bids, 2)
	assert.Equal(t, int64(9900), view.Bids[0].Price, "best bid must be highest price first")
	assert.Equal(t, int64(9800), view.Bids[1].Price)

	require.Len(t, view.Asks, 2)
	assert.Equal(t, int64(10000), view.Asks[0].Price, "best ask must be lowest price first")
	assert.Equal(t, int64(10100), view.Asks[1].Price)
}

func TestSubmitOrder_PartialMatchConsumesBestLevelFirst(t *testing.T) {
	eng, reg := newTestEngine(t)
	seller := registerBroker(reg)
	buyer := registerBroker(reg)

	limitOrder(eng, seller, domain.Ask, 10000, 100)
	limitOrder(eng, seller, domain.Ask, 10100, 20)

	_, trades := limitOrder(eng, buyer, domain.Bid, 10000, 30)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(10000), trades[0].Price)
	assert.Equal(t, uint64(30), trades[0].Quantity)

	view, err := eng.OrderBook("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, view.Asks, 2)
	assert.Equal(t, uint64(70), view.Asks[0].TotalQty)
	assert.Equal(t, uint64(20), view.Asks[1].TotalQty)
}

func TestSubmitOrder_SweepAcrossMultipleLevels(t *testing.T) {
	eng, reg := newTestEngine(t)
	seller := registerBroker(reg)
	buyer := registerBroker(reg)

	limitOrder(eng, seller, domain.Ask, 10000, 100)
	limitOrder(eng, seller, domain.Ask, 10100, 20)

	_, trades := limitOrder(eng, buyer, domain.Bid, 10300, 120)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(10000), trades[0].Price, "first fill executes at the resting level's price")
	assert.Equal(t, int64(10100), trades[1].Price)

	view, err := eng.OrderBook("AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, view.Asks, "a full sweep leaves nothing resting")
}

func TestMarketOrder_NeverRests(t *testing.T) {
	eng, reg := newTestEngine(t)
	seller := registerBroker(reg)
	buyer := registerBroker(reg)

	limitOrder(eng, seller, domain.Ask, 10000, 50)

	id, trades := eng.SubmitOrder(engine.NewOrderInput{
		BrokerID: buyer.ID,
		Type:     domain.Market,
		Side:     domain.Bid,
		Symbol:   "AAPL",
		Quantity: 100,
	})
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(50), trades[0].Quantity)

	order, _, err := eng.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, order.Status, "unfilled market remainder is discarded, not rested")
}

func TestCancel_RemovesRestingOrderAndIsIdempotent(t *testing.T) {
	eng, reg := newTestEngine(t)
	broker := registerBroker(reg)

	id, _ := limitOrder(eng, broker, domain.Bid, 9900, 100)
	eng.Cancel(broker.ID, id)

	order, _, err := eng.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, order.Status)

	view, err := eng.OrderBook("AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, view.Bids)

	// Cancelling again is a silent no-op.
	assert.NotPanics(t, func() { eng.Cancel(broker.ID, id) })
}

func TestCancel_WrongBrokerIsNoOp(t *testing.T) {
	eng, reg := newTestEngine(t)
	owner := registerBroker(reg)
	other := registerBroker(reg)

	id, _ := limitOrder(eng, owner, domain.Bid, 9900, 100)
	eng.Cancel(other.ID, id)

	order, _, err := eng.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, domain.Open, order.Status)
}

func TestBalances_MoveOppositeDirectionsAndConserveTotal(t *testing.T) {
	eng, reg := newTestEngine(t)
	seller := registerBroker(reg)
	buyer := registerBroker(reg)

	limitOrder(eng, seller, domain.Ask, 10000, 50)
	limitOrder(eng, buyer, domain.Bid, 10000, 50)

	buyerBal, err := eng.Balance(buyer.ID)
	require.NoError(t, err)
	sellerBal, err := eng.Balance(seller.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(-500000), buyerBal)
	assert.Equal(t, int64(500000), sellerBal)
	assert.Zero(t, buyerBal+sellerBal, "ledger is zero-sum across every trade")
}

func TestPrice_ReportsLastAndAverageOverWindow(t *testing.T) {
	eng, reg := newTestEngine(t)
	seller := registerBroker(reg)
	buyer := registerBroker(reg)

	limitOrder(eng, seller, domain.Ask, 10000, 10)
	limitOrder(eng, buyer, domain.Bid, 10000, 10)
	limitOrder(eng, seller, domain.Ask, 10200, 10)
	limitOrder(eng, buyer, domain.Bid, 10200, 10)

	stats, err := eng.Price("AAPL", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10200), stats.LastPrice)
	assert.Equal(t, int64(10100), stats.AveragePrice)
	assert.Equal(t, 2, stats.TradesInWindow)
}

func TestPrice_UnknownSymbolReturnsError(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Price("MISSING", 10)
	assert.ErrorIs(t, err, domain.ErrNoRecentTrades)
}

func TestOrderBook_UnknownSymbolReturnsError(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.OrderBook("MISSING", 10)
	assert.ErrorIs(t, err, domain.ErrSymbolNotFound)
}

func TestExpirySweep_PurgesExpiredRestingOrder(t *testing.T) {
	eng, reg := newTestEngine(t)
	broker := registerBroker(reg)

	id, _ := eng.SubmitOrder(engine.NewOrderInput{
		BrokerID:   broker.ID,
		Side:       domain.Bid,
		Type:       domain.Limit,
		Symbol:     "AAPL",
		Price:      9900,
		Quantity:   10,
		ValidUntil: time.Now().Add(10 * time.Millisecond),
	})

	t1, ctx := tomb.WithContext(context.Background())
	t1.Go(func() error {
		return eng.RunExpirySweep(t1, 5*time.Millisecond)
	})
	t.Cleanup(func() {
		t1.Kill(nil)
		t1.Wait()
	})
	_ = ctx

	require.Eventually(t, func() bool {
		order, _, err := eng.Lookup(id)
		return err == nil && order.Status == domain.Expired
	}, time.Second, 5*time.Millisecond)
}
