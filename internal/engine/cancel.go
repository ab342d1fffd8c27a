package engine

import (
	"github.com/google/uuid"

	"bourse/internal/domain"
)

// Cancel removes a resting order from its ladder and marks it
// cancelled. Per §4.2, it is a silent, idempotent no-op if the order
// is missing, owned by another broker, not currently open, or a
// market order — the contract never tells the caller which.
func (e *Engine) Cancel(brokerID, orderID uuid.UUID) {
	e.exec(func() {
		e.cancel(brokerID, orderID)
	})
}

func (e *Engine) cancel(brokerID, orderID uuid.UUID) {
	rec, ok := e.orders[orderID]
	if !ok {
		return
	}
	order := rec.order
	if order.BrokerID != brokerID || order.Status != domain.Open || order.Type != domain.Limit {
		return
	}

	if rec.handle != nil {
		e.book.Ladder(order.Symbol, order.Side).Remove(rec.handle)
		rec.handle = nil
	}
	order.Status = domain.Cancelled
	e.emitUpdate(order)
}
