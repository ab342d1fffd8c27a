// Package book implements the per-symbol, per-side price ladder: an
// ordered mapping from price level to a FIFO queue of resting orders,
// as described in §4.1 of the spec. Iteration order matches match
// priority (best price first); removal of an arbitrary resting order
// by its handle is O(1).
package book

import (
	"container/list"

	"github.com/tidwall/btree"

	"bourse/internal/domain"
)

// level holds every order resting at one price, in FIFO order.
type level struct {
	price  int64
	orders *list.List // list.Element.Value is *domain.Order
}

// Handle is returned by Insert and is the caller's ticket to remove an
// order from the ladder in O(1), without walking any queue.
type Handle struct {
	order *domain.Order
	lvl   *level
	elem  *list.Element
	tree  *btree.BTreeG[*level]
}

// Ladder is one side (bids or asks) of one symbol's book.
type Ladder struct {
	tree *btree.BTreeG[*level]
}

// NewBidLadder sorts price levels highest-first: the best bid is the
// highest price.
func NewBidLadder() *Ladder {
	return &Ladder{tree: btree.NewBTreeG(func(a, b *level) bool {
		return a.price > b.price
	})}
}

// NewAskLadder sorts price levels lowest-first: the best ask is the
// lowest price.
func NewAskLadder() *Ladder {
	return &Ladder{tree: btree.NewBTreeG(func(a, b *level) bool {
		return a.price < b.price
	})}
}

// Insert appends order to the FIFO queue at order.Price, creating the
// level if it does not yet exist. Tie-break within a level is FIFO by
// insertion, which callers achieve by inserting in admission order.
func (l *Ladder) Insert(order *domain.Order) *Handle {
	lvl, ok := l.tree.GetMut(&level{price: order.Price})
	if !ok {
		lvl = &level{price: order.Price, orders: list.New()}
		l.tree.Set(lvl)
	}
	elem := lvl.orders.PushBack(order)
	return &Handle{order: order, lvl: lvl, elem: elem, tree: l.tree}
}

// Remove deletes the order from its level's queue in O(1) and drops
// the level entirely once its queue is empty. Remove is idempotent
// against a nil handle (no-op) so callers need not track whether an
// order was ever resting.
func (l *Ladder) Remove(h *Handle) {
	if h == nil {
		return
	}
	h.lvl.orders.Remove(h.elem)
	if h.lvl.orders.Len() == 0 {
		// Levels may already have dropped this level and a newer one
		// may now hold the same price; only delete our own level.
		if cur, ok := l.tree.Get(h.lvl); ok && cur == h.lvl {
			l.tree.Delete(h.lvl)
		}
	}
}

// PeekBestHandle returns a handle to the order at the head of the best
// price level without removing it — the caller decides whether to
// remove (on expiry/fill) or leave it resting.
func (l *Ladder) PeekBestHandle() *Handle {
	lvl, ok := l.tree.MinMut()
	if !ok || lvl.orders.Len() == 0 {
		return nil
	}
	return &Handle{order: lvl.orders.Front().Value.(*domain.Order), lvl: lvl, elem: lvl.orders.Front(), tree: l.tree}
}

// Order returns the order this handle refers to.
func (h *Handle) Order() *domain.Order { return h.order }

// Level is one aggregated price level, used by the query surface.
type Level struct {
	Price      int64
	TotalQty   uint64
	OrderCount int
}

// Levels iterates best-price-first, aggregating each level's FIFO
// queue, skipping (and lazily purging) already-expired heads, and
// stops once depth levels have been yielded or the ladder is
// exhausted.
func (l *Ladder) Levels(depth int, expired func(*domain.Order) bool) []Level {
	var out []Level
	var emptied []*level
	l.tree.Scan(func(lvl *level) bool {
		// Purge any expired heads before aggregating; expired orders
		// are transiently tolerated in the ladder per §4.1 but must
		// never be reported to a query.
		for lvl.orders.Len() > 0 {
			front := lvl.orders.Front().Value.(*domain.Order)
			if !expired(front) {
				break
			}
			lvl.orders.Remove(lvl.orders.Front())
		}
		if lvl.orders.Len() == 0 {
			emptied = append(emptied, lvl)
			return true
		}
		totalQty := uint64(0)
		count := 0
		for e := lvl.orders.Front(); e != nil; e = e.Next() {
			totalQty += e.Value.(*domain.Order).RemainingQuantity
			count++
		}
		out = append(out, Level{Price: lvl.price, TotalQty: totalQty, OrderCount: count})
		return len(out) < depth
	})
	for _, lvl := range emptied {
		l.tree.Delete(lvl)
	}
	return out
}

// Len reports the number of distinct price levels.
func (l *Ladder) Len() int { return l.tree.Len() }
