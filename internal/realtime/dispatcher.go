package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// Dispatcher delivers job-ready events to the owner's live session or buffers them.
// Dispatch and Attach are serialized so a flush is never overtaken by a newer push.
type Dispatcher struct {
	mu       sync.Mutex
	registry *Registry
	pending  *PendingQueue
	now      func() time.Time
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the registry and pending queue
func NewDispatcher(registry *Registry, pending *PendingQueue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		pending:  pending,
		now:      time.Now,
		logger:   logger,
	}
}

// Dispatch pushes the ready job to owner if a live session exists, otherwise buffers it. It never blocks.
func (d *Dispatcher) Dispatch(job *domain.PrintJob, owner int64) {
	env, err := NewEnvelope(EventJobReady, NewJobReady(job, d.now().UTC()))
	if err != nil {
		d.logger.Error("Failed to encode job-ready event",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if conn, ok := d.registry.Lookup(owner); ok {
		if conn.Send(env) {
			d.logger.Info("Pushed job-ready event",
				slog.Int64("job_id", job.ID),
				slog.Int64("identity", owner),
				slog.String("conn_id", conn.ID()),
			)
			return
		}
		d.logger.Warn("Push failed, buffering job-ready event",
			slog.Int64("job_id", job.ID),
			slog.Int64("identity", owner),
			slog.String("conn_id", conn.ID()),
		)
	}

	d.pending.Enqueue(owner, env)
	d.logger.Info("No live session, buffered job-ready event",
		slog.Int64("job_id", job.ID),
		slog.Int64("identity", owner),
		slog.Int("pending", d.pending.Len(owner)),
	)
}

// Attach registers conn for identity and flushes its pending events in arrival order.
// Events that cannot be sent are requeued. It returns false if a newer session holds the identity.
func (d *Dispatcher) Attach(identity int64, conn Conn, seq uint64) (bool, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registry.Register(identity, conn, seq) {
		return false, 0
	}

	events := d.pending.Drain(identity)
	for i, p := range events {
		if !conn.Send(p.Event) {
			d.pending.Requeue(identity, events[i:])
			d.logger.Warn("Pending flush interrupted",
				slog.Int64("identity", identity),
				slog.Int("flushed", i),
				slog.Int("requeued", len(events)-i),
			)
			return true, i
		}
	}

	if len(events) > 0 {
		d.logger.Info("Flushed pending events",
			slog.Int64("identity", identity),
			slog.String("conn_id", conn.ID()),
			slog.Int("count", len(events)),
		)
	}
	return true, len(events)
}

// Detach removes conn's registration if it still holds identity
func (d *Dispatcher) Detach(identity int64, connID string) bool {
	return d.registry.Remove(identity, connID)
}

// Registry returns the session registry
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Pending returns the pending queue
func (d *Dispatcher) Pending() *PendingQueue {
	return d.pending
}
