package persistence

// Queue is a bounded in-process FIFO of pending events, a thin wrapper
// over a buffered channel. Enqueue on a full queue blocks the caller
// (the single-writer matching path) until the flusher drains room;
// nothing is logged while it waits.
type Queue struct {
	events chan Event
	signal chan struct{}
}

// NewQueue returns a queue that holds up to capacity events before
// Enqueue starts blocking.
func NewQueue(capacity int) *Queue {
	return &Queue{events: make(chan Event, capacity), signal: make(chan struct{}, 1)}
}

// Enqueue appends an event. It blocks if the queue is momentarily
// full; per §4.4 the queue is sized so this is rare in steady state.
// It also pokes Signal so a flusher asleep between ticks can wake early
// once the queue crosses its batch threshold.
func (q *Queue) Enqueue(e Event) {
	q.events <- e
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Signal delivers a value after every Enqueue, coalesced to at most one
// pending wake-up. A reader should treat it as "check Len again", not as
// one event per send.
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}

// drain pulls up to n events without blocking, returning as soon as
// either n events have been pulled or the queue is momentarily empty.
func (q *Queue) drain(n int) []Event {
	batch := make([]Event, 0, n)
	for len(batch) < n {
		select {
		case e := <-q.events:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

// Len reports the number of events currently buffered.
func (q *Queue) Len() int { return len(q.events) }
