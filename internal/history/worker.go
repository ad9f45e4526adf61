package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Source delivers lifecycle messages; *rabbitmq.Client satisfies it
type Source interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Recorder persists lifecycle events; *store.Store satisfies it
type Recorder interface {
	RecordJobEvent(ctx context.Context, event *domain.JobEvent) (bool, error)
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Source      Source
	Recorder    Recorder
	Concurrency int
	JobTimeout  time.Duration
	QueueName   string
}

// Worker consumes job lifecycle events and records them as job history
type Worker struct {
	logger      *slog.Logger
	source      Source
	recorder    Recorder
	concurrency int
	jobTimeout  time.Duration
	queueName   string
	workerID    string

	eventsChan chan *task
	wg         sync.WaitGroup
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// task is one decoded delivery handed to the pool
type task struct {
	delivery amqp.Delivery
	eventID  string
	jobID    int64
	event    *domain.JobEvent
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Second
	}

	return &Worker{
		logger:      cfg.Logger,
		source:      cfg.Source,
		recorder:    cfg.Recorder,
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		queueName:   cfg.QueueName,
		workerID:    "history-" + uuid.NewString()[:8],
		eventsChan:  make(chan *task, concurrency),
		stopChan:    make(chan struct{}),
	}
}

// Start consumes until ctx is canceled, Stop is called or the delivery channel closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting history worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.eventsChan)
	w.wg.Wait()

	w.logger.Info("History worker drained", slog.String("worker_id", w.workerID))
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping history worker...")
		close(w.stopChan)
	})
}
