// Package server is the TCP driver of §6: a JSON-Lines request/response
// protocol over a plain TCP socket, served by a supervised worker pool.
// One connection may carry many requests; each line in is one request,
// each line out is one response.
package server

import (
	"time"

	"github.com/google/uuid"
)

// Op names the requested operation. The wire format is a flat JSON
// object so a line is self-describing without a separate framing
// header, unlike the fixed-width binary frames this protocol
// replaces.
type Op string

const (
	OpSubmitOrder     Op = "submit_order"
	OpCancelOrder     Op = "cancel_order"
	OpGetOrder        Op = "get_order"
	OpGetBook         Op = "get_book"
	OpGetPrice        Op = "get_price"
	OpGetBalance      Op = "get_balance"
	OpRegisterBroker  Op = "register_broker"
)

// Request is one JSON-Lines request. Only the fields relevant to Op
// need be populated; BrokerID authenticates the caller (in place of
// the out-of-scope auth layer, a caller is trusted to state its own
// broker ID).
type Request struct {
	Op             Op         `json:"op"`
	RequestID      string     `json:"request_id,omitempty"`
	BrokerID       uuid.UUID  `json:"broker_id,omitempty"`
	OrderID        uuid.UUID  `json:"order_id,omitempty"`
	DocumentNumber string     `json:"document_number,omitempty"`
	Side           string     `json:"side,omitempty"`
	Type           string     `json:"type,omitempty"`
	Symbol         string     `json:"symbol,omitempty"`
	Price          *int64     `json:"price,omitempty"`
	Quantity       uint64     `json:"quantity,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	Depth          int        `json:"depth,omitempty"`
	Window         int        `json:"window,omitempty"`
	Name           string     `json:"name,omitempty"`
	WebhookURL     string     `json:"webhook_url,omitempty"`
}

// Response is one JSON-Lines response. Only the payload fields that
// belong to the request's Op are populated; Error is set instead of
// any payload when the operation failed.
type Response struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`

	OrderID uuid.UUID `json:"order_id,omitempty"`
	Trades  []TradeWire `json:"trades,omitempty"`

	Order *OrderWire `json:"order,omitempty"`

	Book *BookWire `json:"book,omitempty"`

	Price          int64 `json:"price,omitempty"`
	AveragePrice   int64 `json:"average_price,omitempty"`
	TradesInWindow int   `json:"trades_in_window,omitempty"`

	Balance int64 `json:"balance,omitempty"`

	APIKey string `json:"api_key,omitempty"`
}

// OrderWire is the wire projection of domain.Order.
type OrderWire struct {
	ID                uuid.UUID `json:"id"`
	BrokerID          uuid.UUID `json:"broker_id"`
	DocumentNumber    string    `json:"document_number"`
	Side              string    `json:"side"`
	Type              string    `json:"type"`
	Symbol            string    `json:"symbol"`
	Price             int64     `json:"price,omitempty"`
	Quantity          uint64    `json:"quantity"`
	RemainingQuantity uint64    `json:"remaining_quantity"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// TradeWire is the wire projection of domain.Trade.
type TradeWire struct {
	ID          uuid.UUID `json:"id"`
	Symbol      string    `json:"symbol"`
	BuyOrderID  uuid.UUID `json:"buy_order_id"`
	SellOrderID uuid.UUID `json:"sell_order_id"`
	Price       int64     `json:"price"`
	Quantity    uint64    `json:"quantity"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// BookWireLevel is one aggregated price level on the wire.
type BookWireLevel struct {
	Price      int64  `json:"price"`
	Quantity   uint64 `json:"quantity"`
	OrderCount int    `json:"order_count"`
}

// BookWire is the order_book(symbol, depth) result on the wire.
type BookWire struct {
	Symbol string          `json:"symbol"`
	Bids   []BookWireLevel `json:"bids"`
	Asks   []BookWireLevel `json:"asks"`
}
