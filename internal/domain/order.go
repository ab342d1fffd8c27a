// Package domain holds the plain data types shared by the matching
// engine, the price ladder, and the persistence pipeline.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is which side of the book an order rests or aggresses on.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Type distinguishes limit orders (which may rest) from market orders
// (which are always immediate-or-cancel).
type Type int

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Limit {
		return "limit"
	}
	return "market"
}

// Status is an order's lifecycle state. Once an order reaches Filled,
// Cancelled, or Expired it is terminal and never again present in a
// price ladder.
type Status int

const (
	Open Status = iota
	Filled
	Cancelled
	Expired
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Order is a single resting-or-closed order. Price is integer cents;
// it is meaningful only when Type == Limit. ValidUntil is likewise
// only meaningful for limit orders.
type Order struct {
	ID                 uuid.UUID
	BrokerID           uuid.UUID
	DocumentNumber     string
	Side               Side
	Type               Type
	Symbol             string
	Price              int64
	Quantity           uint64
	RemainingQuantity  uint64
	ValidUntil         time.Time
	Status             Status
	CreatedAt          time.Time
}

// Expired reports whether the order's resting window has elapsed as of
// now. Market orders never expire (they never rest).
func (o *Order) Expired(now time.Time) bool {
	return o.Type == Limit && !o.ValidUntil.IsZero() && !now.Before(o.ValidUntil)
}

// Restable reports whether the order currently belongs in a price
// ladder: open, limit, with quantity left, not yet expired.
func (o *Order) Restable(now time.Time) bool {
	return o.Type == Limit && o.Status == Open && o.RemainingQuantity > 0 && !o.Expired(now)
}

// Snapshot returns a structural copy of the order. Used to capture an
// immutable value at persistence-enqueue time, so that subsequent
// in-place mutation of the live order does not retroactively change
// what was recorded as "submitted".
func (o *Order) Snapshot() Order {
	return *o
}

func (o Order) String() string {
	return fmt.Sprintf(
		`ID:        %s
Broker:    %s
Symbol:    %s
Side:      %v
Type:      %v
Price:     %d
Remaining: %d (of %d)
Status:    %v
ValidUntil: %v`,
		o.ID, o.BrokerID, o.Symbol, o.Side, o.Type,
		o.Price, o.RemainingQuantity, o.Quantity, o.Status,
		o.ValidUntil.Format(time.RFC3339),
	)
}
