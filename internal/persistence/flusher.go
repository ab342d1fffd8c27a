package persistence

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"bourse/internal/domain"
)

const (
	// DefaultFlushInterval is the fixed wake-up period of §4.4; a
	// flush also fires early once the queue reaches DefaultBatchSize.
	DefaultFlushInterval  = 30 * time.Millisecond
	DefaultBatchSize      = 256
	defaultWebhookTimeout = 2 * time.Second
)

// Flusher drains Queue on a fixed interval (or batch-size threshold,
// whichever comes first), coalesces the batch into a single durable
// transaction, and dispatches trade webhooks on commit. It runs as a
// tomb-supervised goroutine, the same idiom the teacher's WorkerPool
// uses for graceful shutdown.
type Flusher struct {
	queue     *Queue
	store     *Store
	webhooks  *webhookDispatcher
	interval  time.Duration
	batchSize int

	// A batch that failed to commit stays pending and is retried on
	// the next tick instead of being discarded, per §4.4 step 4's
	// "retry the batch on the next tick". New events keep draining
	// into the queue in the meantime; they simply wait their turn.
	pendingOrders  []domain.Order
	pendingTrades  []TradeEvent
	pendingUpdates map[uuid.UUID]OrderUpdateEvent
}

func NewFlusher(queue *Queue, store *Store, interval time.Duration, batchSize int, webhookTimeout time.Duration) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if webhookTimeout <= 0 {
		webhookTimeout = defaultWebhookTimeout
	}
	return &Flusher{
		queue:     queue,
		store:     store,
		webhooks:  newWebhookDispatcher(webhookTimeout),
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run drives the flush loop until t is killed. It wakes on the fixed
// interval or as soon as the queue reaches batchSize, whichever comes
// first, per §4.4. It is meant to be started with t.Go(flusher.Run).
func (f *Flusher) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			// Best-effort final drain so a clean shutdown does not
			// strand a full batch that was already sitting in memory.
			f.flushOnce()
			return nil
		case <-ticker.C:
			f.flushOnce()
		case <-f.queue.Signal():
			if f.queue.Len() >= f.batchSize {
				f.flushOnce()
			}
		}
	}
}

// flushOnce drains up to batchSize fresh events (unless a previous
// batch is still pending retry) and commits them in one transaction.
// A transient durability failure is logged and the batch is kept
// pending for the next tick rather than discarded; memory remains
// authoritative regardless of the outcome, so callers never see a
// flush failure.
func (f *Flusher) flushOnce() {
	if f.pendingUpdates == nil {
		f.pendingUpdates = make(map[uuid.UUID]OrderUpdateEvent)
	}

	// Only pull fresh events once any previously-failed batch has
	// committed, preserving enqueue order across retries.
	if len(f.pendingOrders) == 0 && len(f.pendingTrades) == 0 && len(f.pendingUpdates) == 0 {
		batch := f.queue.drain(f.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			switch ev := e.(type) {
			case NewOrderEvent:
				f.pendingOrders = append(f.pendingOrders, ev.Order)
			case TradeEvent:
				f.pendingTrades = append(f.pendingTrades, ev)
			case OrderUpdateEvent:
				// Deduplicate per order ID, keeping the last: status
				// transitions are monotonic toward terminal.
				f.pendingUpdates[ev.OrderID] = ev
			}
		}
	}

	if err := f.store.FlushBatch(f.pendingOrders, f.pendingTrades, f.pendingUpdates); err != nil {
		log.Error().Err(err).
			Int("orders", len(f.pendingOrders)).
			Int("trades", len(f.pendingTrades)).
			Int("updates", len(f.pendingUpdates)).
			Msg("persistence flush failed, retrying next tick")
		return
	}

	for _, te := range f.pendingTrades {
		f.webhooks.dispatch(te)
	}

	f.pendingOrders = nil
	f.pendingTrades = nil
	f.pendingUpdates = make(map[uuid.UUID]OrderUpdateEvent)
}
