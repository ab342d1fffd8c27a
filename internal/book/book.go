package book

import "bourse/internal/domain"

// sides bundles the bid and ask ladders for a single symbol.
type sides struct {
	Bids *Ladder
	Asks *Ladder
}

// Book is the full collection of per-symbol ladders. Ladders are
// created lazily on first use, per §4.1.
type Book struct {
	symbols map[string]*sides
}

// New returns an empty Book.
func New() *Book {
	return &Book{symbols: make(map[string]*sides)}
}

func (b *Book) sidesFor(symbol string) *sides {
	s, ok := b.symbols[symbol]
	if !ok {
		s = &sides{Bids: NewBidLadder(), Asks: NewAskLadder()}
		b.symbols[symbol] = s
	}
	return s
}

// Ladder returns the ladder for the given symbol and side, creating it
// if this is the first order ever seen for that symbol.
func (b *Book) Ladder(symbol string, side domain.Side) *Ladder {
	s := b.sidesFor(symbol)
	if side == domain.Bid {
		return s.Bids
	}
	return s.Asks
}

// Opposite returns the ladder on the other side of symbol from side —
// the side a new aggressor matches against.
func (b *Book) Opposite(symbol string, side domain.Side) *Ladder {
	if side == domain.Bid {
		return b.Ladder(symbol, domain.Ask)
	}
	return b.Ladder(symbol, domain.Bid)
}

// Known reports whether any order has ever been admitted for symbol,
// resting or not (used by the query surface's not-found rule, together
// with trade history).
// sidesFor is called the moment an order for the symbol is first
// admitted, and entries are never removed, so map membership alone
// tracks "ever seen" independent of current ladder occupancy — a
// symbol that rested and was later fully cancelled is still known.
func (b *Book) Known(symbol string) bool {
	_, ok := b.symbols[symbol]
	return ok
}
