package engine

import (
	"time"

	"github.com/google/uuid"

	"bourse/internal/book"
	"bourse/internal/domain"
	"bourse/internal/persistence"
)

// NewOrderInput is everything a caller supplies at admission; the
// engine assigns ID, CreatedAt, Status, and RemainingQuantity.
type NewOrderInput struct {
	BrokerID       uuid.UUID
	DocumentNumber string
	Side           domain.Side
	Type           domain.Type
	Symbol         string
	Price          int64
	Quantity       uint64
	ValidUntil     time.Time
}

// SubmitOrder runs the full admission-and-match procedure of §4.2 and
// returns the new order's ID plus every trade it produced.
func (e *Engine) SubmitOrder(in NewOrderInput) (uuid.UUID, []*domain.Trade) {
	var id uuid.UUID
	var trades []*domain.Trade
	e.exec(func() {
		id, trades = e.submitOrder(in)
	})
	return id, trades
}

func (e *Engine) submitOrder(in NewOrderInput) (uuid.UUID, []*domain.Trade) {
	now := e.now()
	order := &domain.Order{
		ID:                uuid.New(),
		BrokerID:          in.BrokerID,
		DocumentNumber:    in.DocumentNumber,
		Side:              in.Side,
		Type:              in.Type,
		Symbol:            in.Symbol,
		Price:             in.Price,
		Quantity:          in.Quantity,
		RemainingQuantity: in.Quantity,
		ValidUntil:        in.ValidUntil,
		Status:            domain.Open,
		CreatedAt:         now,
	}

	// Snapshot before matching begins: durable history must record
	// the order as submitted, not as subsequently mutated.
	e.sink.Enqueue(persistence.NewOrderEvent{Order: order.Snapshot()})

	rec := &record{order: order}
	e.orders[order.ID] = rec

	trades := e.runMatchLoop(order)

	switch {
	case order.RemainingQuantity == 0:
		order.Status = domain.Filled
		e.emitUpdate(order)
	case order.Type == domain.Market:
		// IOC remainder discarded; never rested.
		order.Status = domain.Cancelled
		e.emitUpdate(order)
	default:
		rec.handle = e.book.Ladder(order.Symbol, order.Side).Insert(order)
	}

	return order.ID, trades
}

// runMatchLoop repeatedly draws the best resting candidate on the
// opposite side and crosses it against aggressor until either the
// aggressor is filled or nothing more crosses. It mutates aggressor,
// the book, the order index, brokers' balances, and the symbol's
// recent-trade ring; it never suspends.
func (e *Engine) runMatchLoop(aggressor *domain.Order) []*domain.Trade {
	opposite := e.book.Opposite(aggressor.Symbol, aggressor.Side)
	now := e.now()
	var trades []*domain.Trade

	for aggressor.RemainingQuantity > 0 {
		handle := opposite.PeekBestHandle()
		if handle == nil {
			break
		}
		candidate := handle.Order()

		if candidate.Expired(now) {
			e.expireResting(opposite, handle)
			continue
		}

		if !crosses(aggressor, candidate) {
			break
		}

		trades = append(trades, e.executeTrade(opposite, handle, aggressor, candidate))
	}
	return trades
}

// crosses implements §4.2's crossing test.
func crosses(aggressor, candidate *domain.Order) bool {
	if aggressor.Type == domain.Market {
		return true
	}
	if aggressor.Side == domain.Bid {
		return aggressor.Price >= candidate.Price
	}
	return aggressor.Price <= candidate.Price
}

// executeTrade matches aggressor against the resting candidate for
// q = min(remaining quantities) at the candidate's (resting) price,
// updates both orders, balances, the recent-trade ring, and emits the
// trade and any resulting status-update events.
func (e *Engine) executeTrade(opposite *book.Ladder, handle *book.Handle, aggressor, candidate *domain.Order) *domain.Trade {
	price := candidate.Price
	qty := min64(aggressor.RemainingQuantity, candidate.RemainingQuantity)

	aggressor.RemainingQuantity -= qty
	candidate.RemainingQuantity -= qty

	var buyOrder, sellOrder *domain.Order
	if aggressor.Side == domain.Bid {
		buyOrder, sellOrder = aggressor, candidate
	} else {
		buyOrder, sellOrder = candidate, aggressor
	}

	now := e.now()
	trade := &domain.Trade{
		ID:          uuid.New(),
		Symbol:      aggressor.Symbol,
		BuyOrderID:  buyOrder.ID,
		SellOrderID: sellOrder.ID,
		Price:       price,
		Quantity:    qty,
		ExecutedAt:  now,
	}
	e.trades[buyOrder.ID] = append(e.trades[buyOrder.ID], trade)
	e.trades[sellOrder.ID] = append(e.trades[sellOrder.ID], trade)

	amount := int64(qty) * price
	e.registry.AdjustBalance(buyOrder.BrokerID, -amount)
	e.registry.AdjustBalance(sellOrder.BrokerID, amount)

	if candidate.RemainingQuantity == 0 {
		candidate.Status = domain.Filled
		opposite.Remove(handle)
		e.orders[candidate.ID].handle = nil
		e.emitUpdate(candidate)
	}

	e.ringFor(aggressor.Symbol).push(price)

	e.sink.Enqueue(persistence.TradeEvent{
		Trade:   *trade,
		Buyer:   e.webhookContext(buyOrder.BrokerID),
		Seller:  e.webhookContext(sellOrder.BrokerID),
		BuyRem:  buyOrder.RemainingQuantity,
		SellRem: sellOrder.RemainingQuantity,
	})

	return trade
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// expireResting transitions a resting order discovered to be past its
// valid_until to Expired, removes it from its ladder, and emits a
// status-update event, per the expiration branch of §4.2's match
// loop and the lazy-expiration rule of §4.1/§4.3.
func (e *Engine) expireResting(ladder *book.Ladder, handle *book.Handle) {
	order := handle.Order()
	order.Status = domain.Expired
	ladder.Remove(handle)
	if rec, ok := e.orders[order.ID]; ok {
		rec.handle = nil
	}
	e.emitUpdate(order)
}

// emitUpdate enqueues an OrderUpdateEvent snapshotting order's current
// status and remaining quantity.
func (e *Engine) emitUpdate(order *domain.Order) {
	e.sink.Enqueue(persistence.OrderUpdateEvent{
		OrderID:           order.ID,
		Status:            order.Status,
		RemainingQuantity: order.RemainingQuantity,
	})
}

func (e *Engine) webhookContext(brokerID uuid.UUID) persistence.BrokerWebhook {
	url := ""
	if b, ok := e.registry.Get(brokerID); ok {
		url = b.WebhookURL
	}
	return persistence.BrokerWebhook{BrokerID: brokerID, WebhookURL: url}
}
