package engine

import (
	"github.com/google/uuid"

	"bourse/internal/book"
	"bourse/internal/domain"
)

const (
	DefaultDepth  = 10
	MaxDepth      = 50
	DefaultWindow = 50
	MaxWindow     = 1000
)

// Lookup is memory-first over the order index. If the order is absent
// in memory, a one-shot durable fetch reconstructs a pre-restart
// order record. Trades always come from the in-memory trade index,
// which recovery rehydrates only for orders still open at startup; the
// durable fetch loads no trades, so a purely historical order is
// returned with an empty trade list.
func (e *Engine) Lookup(orderID uuid.UUID) (*domain.Order, []*domain.Trade, error) {
	var order *domain.Order
	var trades []*domain.Trade
	var err error
	e.exec(func() {
		order, trades, err = e.lookup(orderID)
	})
	return order, trades, err
}

func (e *Engine) lookup(orderID uuid.UUID) (*domain.Order, []*domain.Trade, error) {
	rec, ok := e.orders[orderID]
	if !ok {
		if e.store == nil {
			return nil, nil, domain.ErrOrderNotFound
		}
		fetched, err := e.store.FetchOrder(orderID)
		if err != nil {
			return nil, nil, domain.ErrOrderNotFound
		}
		// Cache it so repeated lookups do not keep hitting the store.
		rec = &record{order: fetched}
		e.orders[orderID] = rec
		return fetched, e.trades[orderID], nil
	}

	order := rec.order
	if order.Status == domain.Open && order.Expired(e.now()) {
		if rec.handle != nil {
			e.book.Ladder(order.Symbol, order.Side).Remove(rec.handle)
			rec.handle = nil
		}
		order.Status = domain.Expired
		e.emitUpdate(order)
	}
	return order, e.trades[orderID], nil
}

// OrderBookLevel mirrors book.Level; re-exported here so callers never
// need to import internal/book directly.
type OrderBookLevel = book.Level

// OrderBookView is the aggregated order_book(symbol, depth) result of
// §4.3.
type OrderBookView struct {
	Asks []OrderBookLevel
	Bids []OrderBookLevel
}

// OrderBook aggregates each ladder's top `depth` levels best-first.
// A non-positive depth takes DefaultDepth and a larger one is clamped
// to MaxDepth. It returns ErrSymbolNotFound only if no order has ever
// been admitted for the symbol and it has no recent-trade history; a
// symbol with either is known, even when both ladders are empty.
func (e *Engine) OrderBook(symbol string, depth int) (OrderBookView, error) {
	var view OrderBookView
	var err error
	e.exec(func() {
		view, err = e.orderBook(symbol, depth)
	})
	return view, err
}

func (e *Engine) orderBook(symbol string, depth int) (OrderBookView, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	if !e.book.Known(symbol) {
		if _, hasTrades := e.hasTradeHistory(symbol); !hasTrades {
			return OrderBookView{}, domain.ErrSymbolNotFound
		}
	}

	now := e.now()
	isExpired := func(o *domain.Order) bool { return o.Expired(now) }

	asks := e.book.Ladder(symbol, domain.Ask).Levels(depth, isExpired)
	bids := e.book.Ladder(symbol, domain.Bid).Levels(depth, isExpired)
	return OrderBookView{Asks: asks, Bids: bids}, nil
}

func (e *Engine) hasTradeHistory(symbol string) (int, bool) {
	r, ok := e.rings[symbol]
	if !ok {
		return 0, false
	}
	return r.size(), r.size() > 0
}

// PriceStats is the price(symbol, window) result of §4.3.
type PriceStats struct {
	LastPrice      int64
	AveragePrice   int64
	TradesInWindow int
}

// Price reads the symbol's recent-trade ring. A non-positive window
// takes DefaultWindow and a larger one is clamped to MaxWindow; it
// returns domain.ErrNoRecentTrades if the ring is
// empty.
func (e *Engine) Price(symbol string, window int) (PriceStats, error) {
	var stats PriceStats
	var err error
	e.exec(func() {
		stats, err = e.price(symbol, window)
	})
	return stats, err
}

func (e *Engine) price(symbol string, window int) (PriceStats, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}
	r, ok := e.rings[symbol]
	if !ok || r.size() == 0 {
		return PriceStats{}, domain.ErrNoRecentTrades
	}
	last, _ := r.last()
	recent := r.recent(window)

	var sum int64
	for _, p := range recent {
		sum += p
	}
	avg := sum / int64(len(recent)) // truncation toward zero, per §4.3
	return PriceStats{LastPrice: last, AveragePrice: avg, TradesInWindow: len(recent)}, nil
}

// Balance is a direct read from the broker registry.
func (e *Engine) Balance(brokerID uuid.UUID) (int64, error) {
	bal, ok := e.registry.Balance(brokerID)
	if !ok {
		return 0, domain.ErrBrokerNotFound
	}
	return bal, nil
}
