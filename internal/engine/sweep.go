package engine

import (
	"time"

	tomb "gopkg.in/tomb.v2"

	"bourse/internal/domain"
)

// DefaultSweepInterval is how often RunExpirySweep purges expired
// resting orders in the background, independent of the lazy expiration
// already performed on the hot match/lookup paths.
const DefaultSweepInterval = 5 * time.Second

// RunExpirySweep periodically walks the order index and expires every
// resting order, at any queue position, whose valid_until has passed,
// so order_book's depth aggregation never pays for an expiry
// check on a symbol nobody is actively trading. Lazy expiration on the
// match and lookup paths remains authoritative; this sweep only
// improves the read path and changes no invariant. Meant to be started
// with t.Go, matching the flusher's tomb-supervision idiom.
func (e *Engine) RunExpirySweep(t *tomb.Tomb, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			e.exec(e.sweepExpired)
		}
	}
}

func (e *Engine) sweepExpired() {
	now := e.now()
	isExpired := func(o *domain.Order) bool { return o.Expired(now) }
	for _, rec := range e.orders {
		if rec.handle == nil || rec.order.Status != domain.Open {
			continue
		}
		if !isExpired(rec.order) {
			continue
		}
		ladder := e.book.Ladder(rec.order.Symbol, rec.order.Side)
		e.expireResting(ladder, rec.handle)
	}
}
