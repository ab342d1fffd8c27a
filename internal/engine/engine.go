// Package engine implements the matching core of §4.2: the single
// writer that owns the price ladders, the order index, the trade
// index, and the recent-trade rings, and the query surface of §4.3
// that reads them.
package engine

import (
	"time"

	"github.com/google/uuid"

	"bourse/internal/book"
	"bourse/internal/domain"
	"bourse/internal/persistence"
	"bourse/internal/registry"
)

// Sink is the subset of the persistence pipeline the engine needs: a
// place to enqueue immutable event snapshots. *persistence.Queue
// already satisfies this directly.
type Sink interface {
	Enqueue(persistence.Event)
}

// record is the order index's entry: the live order plus its ladder
// handle, if it currently rests.
type record struct {
	order  *domain.Order
	handle *book.Handle
}

// RingCapacity is the bounded recent-trade ring's default size (§3
// component 5), used when New is given ringCapacity <= 0.
const RingCapacity = 1000

// Engine is the single-writer matching core. SubmitOrder, Cancel,
// Lookup, OrderBook, Price and the expiry sweep funnel through a single
// goroutine (see run) so that they observe a consistent snapshot
// between match cascades, per §5. Balance reads the registry directly
// under the registry's own lock, and LoadRecovered and Close do not go
// through the executor.
type Engine struct {
	book         *book.Book
	orders       map[uuid.UUID]*record
	trades       map[uuid.UUID][]*domain.Trade
	rings        map[string]*priceRing
	ringCapacity int
	registry     *registry.Registry
	sink         Sink
	store        orderFetcher
	now          func() time.Time

	commands chan func()
	done     chan struct{}
}

// orderFetcher is the one-shot durable fallback lookup uses once
// recovery has completed (§4.3).
type orderFetcher interface {
	FetchOrder(uuid.UUID) (*domain.Order, error)
}

// New constructs an Engine. store may be nil (e.g. in tests that never
// exercise the durable fallback path). ringCapacity <= 0 falls back to
// RingCapacity.
func New(reg *registry.Registry, sink Sink, store orderFetcher, ringCapacity int) *Engine {
	if ringCapacity <= 0 {
		ringCapacity = RingCapacity
	}
	e := &Engine{
		book:         book.New(),
		orders:       make(map[uuid.UUID]*record),
		trades:       make(map[uuid.UUID][]*domain.Trade),
		rings:        make(map[string]*priceRing),
		ringCapacity: ringCapacity,
		registry:     reg,
		sink:         sink,
		store:        store,
		now:          time.Now,
		commands:     make(chan func(), 64),
		done:         make(chan struct{}),
	}
	go e.run()
	return e
}

// run is the single logical executor: every request is a closure
// enqueued onto commands and executed to completion before the next
// is dequeued. No suspension occurs inside a closure, matching §5's
// "no suspension inside the match loop" requirement.
func (e *Engine) run() {
	for {
		select {
		case cmd := <-e.commands:
			cmd()
		case <-e.done:
			return
		}
	}
}

// Close stops the engine's executor goroutine. It does not touch the
// persistence pipeline, which the caller owns and stops separately.
func (e *Engine) Close() {
	close(e.done)
}

// exec runs fn on the single-writer goroutine and blocks until it
// completes, giving callers a synchronous call despite the
// channel-based serialization underneath.
func (e *Engine) exec(fn func()) {
	reply := make(chan struct{})
	e.commands <- func() {
		fn()
		close(reply)
	}
	<-reply
}

func (e *Engine) ringFor(symbol string) *priceRing {
	r, ok := e.rings[symbol]
	if !ok {
		r = newPriceRing(e.ringCapacity)
		e.rings[symbol] = r
	}
	return r
}

// LoadRecovered seeds the engine's in-memory state from a persistence
// snapshot. It must be called before the engine starts admitting
// requests (i.e. before any goroutine calls SubmitOrder/Cancel/etc.),
// so it touches state directly rather than going through exec.
func (e *Engine) LoadRecovered(snap *persistence.Snapshot) {
	for _, o := range snap.OpenOrders {
		rec := &record{order: o}
		if o.Restable(e.now()) {
			rec.handle = e.book.Ladder(o.Symbol, o.Side).Insert(o)
		}
		e.orders[o.ID] = rec
	}
	for _, t := range snap.Trades {
		e.trades[t.BuyOrderID] = append(e.trades[t.BuyOrderID], t)
		e.trades[t.SellOrderID] = append(e.trades[t.SellOrderID], t)
	}
	for symbol, prices := range snap.RecentPrices {
		ring := e.ringFor(symbol)
		for _, p := range prices {
			ring.push(p)
		}
	}
}
