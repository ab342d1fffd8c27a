package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bourse/internal/domain"
)

func newOrder(side domain.Side, price int64, qty uint64) *domain.Order {
	return &domain.Order{
		Side:              side,
		Type:              domain.Limit,
		Price:             price,
		Quantity:          qty,
		RemainingQuantity: qty,
		Status:            domain.Open,
		ValidUntil:        time.Now().Add(time.Hour),
	}
}

func neverExpired(*domain.Order) bool { return false }

func TestBidLadder_BestIsHighestPrice(t *testing.T) {
	l := NewBidLadder()
	l.Insert(newOrder(domain.Bid, 9900, 10))
	l.Insert(newOrder(domain.Bid, 10000, 10))
	l.Insert(newOrder(domain.Bid, 9800, 10))

	require.Equal(t, int64(10000), l.PeekBestHandle().Order().Price)
}

func TestAskLadder_BestIsLowestPrice(t *testing.T) {
	l := NewAskLadder()
	l.Insert(newOrder(domain.Ask, 10100, 10))
	l.Insert(newOrder(domain.Ask, 10000, 10))
	l.Insert(newOrder(domain.Ask, 10200, 10))

	require.Equal(t, int64(10000), l.PeekBestHandle().Order().Price)
}

func TestLadder_FIFOWithinALevel(t *testing.T) {
	l := NewBidLadder()
	first := newOrder(domain.Bid, 9900, 10)
	second := newOrder(domain.Bid, 9900, 20)
	l.Insert(first)
	l.Insert(second)

	assert.Same(t, first, l.PeekBestHandle().Order())
}

func TestLadder_RemoveByHandleIsO1AndDropsEmptyLevel(t *testing.T) {
	l := NewBidLadder()
	h := l.Insert(newOrder(domain.Bid, 9900, 10))
	require.Equal(t, 1, l.Len())

	l.Remove(h)
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.PeekBestHandle())
}

func TestLadder_RemoveNilHandleIsNoOp(t *testing.T) {
	l := NewBidLadder()
	assert.NotPanics(t, func() { l.Remove(nil) })
}

func TestLadder_LevelsAggregatesQuantityAndSkipsExpired(t *testing.T) {
	l := NewAskLadder()
	l.Insert(newOrder(domain.Ask, 10000, 10))
	l.Insert(newOrder(domain.Ask, 10000, 20))
	expired := newOrder(domain.Ask, 9900, 5)
	expired.ValidUntil = time.Now().Add(-time.Minute)
	l.Insert(expired)

	levels := l.Levels(10, func(o *domain.Order) bool { return o.Expired(time.Now()) })
	require.Len(t, levels, 1)
	assert.Equal(t, int64(10000), levels[0].Price)
	assert.Equal(t, uint64(30), levels[0].TotalQty)
	assert.Equal(t, 2, levels[0].OrderCount)
}

func TestLadder_LevelsRespectsDepth(t *testing.T) {
	l := NewAskLadder()
	l.Insert(newOrder(domain.Ask, 10000, 10))
	l.Insert(newOrder(domain.Ask, 10100, 10))
	l.Insert(newOrder(domain.Ask, 10200, 10))

	levels := l.Levels(2, neverExpired)
	assert.Len(t, levels, 2)
}

func TestBook_OppositeSide(t *testing.T) {
	b := New()
	assert.False(t, b.Known("AAPL"))
	b.Ladder("AAPL", domain.Bid).Insert(newOrder(domain.Bid, 9900, 10))
	assert.True(t, b.Known("AAPL"))
	assert.Same(t, b.Ladder("AAPL", domain.Ask), b.Opposite("AAPL", domain.Bid))
}
