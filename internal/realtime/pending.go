package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Pending is an undelivered event and when it was buffered
type Pending struct {
	Event      Envelope
	EnqueuedAt time.Time
}

// PendingQueue buffers undelivered events per identity in arrival order.
// Each identity holds at most max events, dropping the oldest; events older than ttl are discarded.
type PendingQueue struct {
	mu     sync.Mutex
	queues map[int64][]Pending
	max    int
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewPendingQueue creates a pending queue; ttl <= 0 disables expiry
func NewPendingQueue(max int, ttl time.Duration, logger *slog.Logger) *PendingQueue {
	if max <= 0 {
		max = 1
	}
	return &PendingQueue{
		queues: make(map[int64][]Pending),
		max:    max,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Enqueue appends an event for identity and returns how many old events were dropped
func (q *PendingQueue) Enqueue(identity int64, event Envelope) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := append(q.queues[identity], Pending{Event: event, EnqueuedAt: q.now()})
	dropped := 0
	if len(queue) > q.max {
		dropped = len(queue) - q.max
		queue = append([]Pending(nil), queue[dropped:]...)
		q.logger.Warn("Pending queue full, dropped oldest events",
			slog.Int64("identity", identity),
			slog.Int("dropped", dropped),
		)
	}
	q.queues[identity] = queue
	return dropped
}

// Drain removes and returns the identity's unexpired events, oldest first
func (q *PendingQueue) Drain(identity int64) []Pending {
	q.mu.Lock()
	queue := q.queues[identity]
	delete(q.queues, identity)
	q.mu.Unlock()

	live := q.unexpired(queue)
	if expired := len(queue) - len(live); expired > 0 {
		q.logger.Info("Discarded expired pending events",
			slog.Int64("identity", identity),
			slog.Int("expired", expired),
		)
	}
	return live
}

// Requeue puts events back at the front of the identity's queue, keeping their order
func (q *PendingQueue) Requeue(identity int64, events []Pending) {
	if len(events) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	queue := make([]Pending, 0, len(events)+len(q.queues[identity]))
	queue = append(queue, events...)
	queue = append(queue, q.queues[identity]...)
	if len(queue) > q.max {
		queue = queue[len(queue)-q.max:]
	}
	q.queues[identity] = queue
}

// Len returns the number of buffered events for identity
func (q *PendingQueue) Len(identity int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[identity])
}

// Total returns the number of buffered events across identities
func (q *PendingQueue) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	for _, queue := range q.queues {
		total += len(queue)
	}
	return total
}

// Prune discards expired events for every identity and returns how many were removed
func (q *PendingQueue) Prune() int {
	if q.ttl <= 0 {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for identity, queue := range q.queues {
		live := q.unexpired(queue)
		removed += len(queue) - len(live)
		if len(live) == 0 {
			delete(q.queues, identity)
		} else {
			q.queues[identity] = live
		}
	}
	return removed
}

func (q *PendingQueue) unexpired(queue []Pending) []Pending {
	if q.ttl <= 0 {
		return queue
	}

	cutoff := q.now().Add(-q.ttl)
	live := make([]Pending, 0, len(queue))
	for _, p := range queue {
		if p.EnqueuedAt.After(cutoff) {
			live = append(live, p)
		}
	}
	return live
}
