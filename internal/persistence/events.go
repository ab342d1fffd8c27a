package persistence

import (
	"github.com/google/uuid"

	"bourse/internal/domain"
)

// Event is the closed set of immutable snapshots the persistence
// pipeline accepts, per §4.4. Each is captured at the moment of
// enqueue so later in-memory mutation cannot retroactively change
// durable history.
type Event interface {
	isEvent()
}

// NewOrderEvent records an order exactly as submitted, before matching
// began.
type NewOrderEvent struct {
	Order domain.Order
}

func (NewOrderEvent) isEvent() {}

// BrokerWebhook is the minimal broker context a TradeEvent carries so
// the flusher can dispatch webhooks after commit without touching the
// broker registry from a background goroutine.
type BrokerWebhook struct {
	BrokerID   uuid.UUID
	WebhookURL string
}

// TradeEvent records a completed trade plus enough broker context to
// drive post-commit webhook dispatch.
type TradeEvent struct {
	Trade   domain.Trade
	Buyer   BrokerWebhook
	Seller  BrokerWebhook
	BuyRem  uint64 // buy order's remaining quantity after this trade
	SellRem uint64 // sell order's remaining quantity after this trade
}

func (TradeEvent) isEvent() {}

// OrderUpdateEvent is a terminal-or-intermediate status write. Within
// one batch only the last update for a given OrderID is authoritative
// (status transitions are monotonic toward terminal).
type OrderUpdateEvent struct {
	OrderID           uuid.UUID
	Status            domain.Status
	RemainingQuantity uint64
}

func (OrderUpdateEvent) isEvent() {}
