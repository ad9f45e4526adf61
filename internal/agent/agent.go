package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/cuongbtq/print-relay/internal/realtime"
)

// ErrAlreadyStarted is returned by a second call to Start
var ErrAlreadyStarted = errors.New("agent already started")

const recentJobs = 1024

// Config holds agent timing and the push channel credential
type Config struct {
	Token              string
	PollInterval       time.Duration // while the push channel is not live
	SafetyPollInterval time.Duration // while it is
	ReconnectMin       time.Duration
	ReconnectMax       time.Duration
	ReportTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.SafetyPollInterval <= 0 {
		c.SafetyPollInterval = 30 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = 30 * time.Second
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = 10 * time.Second
	}
	return c
}

// eventHandler handles one inbound push event; an error drops the connection
type eventHandler func(ctx context.Context, conn PushConn, env realtime.Envelope) error

// Agent keeps a push channel open, falls back to polling the pull endpoint,
// and executes each ready job once: claim with processing, run, then report the outcome.
type Agent struct {
	config   Config
	api      JobAPI
	dialer   Dialer
	executor Executor
	logger   *slog.Logger
	handlers map[string]eventHandler

	live    atomic.Bool
	pollNow chan struct{}

	mu       sync.Mutex
	inflight map[int64]struct{}
	recent   *recentSet
	conn     PushConn
	cancel   context.CancelFunc
	started  bool
	wg       sync.WaitGroup
}

// New creates an agent. An Agent runs once: Start after Stop is rejected.
func New(config Config, api JobAPI, dialer Dialer, executor Executor, logger *slog.Logger) *Agent {
	a := &Agent{
		config:   config.withDefaults(),
		api:      api,
		dialer:   dialer,
		executor: executor,
		logger:   logger,
		pollNow:  make(chan struct{}, 1),
		inflight: make(map[int64]struct{}),
		recent:   newRecentSet(recentJobs),
	}

	a.handlers = map[string]eventHandler{
		realtime.EventAuthenticated: a.onAuthenticated,
		realtime.EventJobReady:      a.onJobReady,
		realtime.EventPing:          a.onPing,
		realtime.EventPong:          a.onPong,
		realtime.EventPresence:      a.onPresence,
		realtime.EventError:         a.onError,
	}
	return a
}

// Start launches the push and poll loops and returns immediately
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}
	a.started = true

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(2)
	go a.pushLoop(runCtx)
	go a.pollLoop(runCtx)

	a.logger.Info("Agent started",
		slog.Duration("poll_interval", a.config.PollInterval),
		slog.Duration("safety_poll_interval", a.config.SafetyPollInterval),
	)
	return nil
}

// Stop closes the push channel, stops polling and waits for running jobs to report
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	if cancel != nil {
		cancel()
	}
	conn := a.conn
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		conn.Close()
	}

	a.wg.Wait()
	a.logger.Info("Agent stopped")
}

// Live reports whether the push channel is authenticated
func (a *Agent) Live() bool {
	return a.live.Load()
}

func (a *Agent) pushLoop(ctx context.Context) {
	defer a.wg.Done()

	backoff := a.config.ReconnectMin
	for {
		authenticated, err := a.runSession(ctx)
		a.live.Store(false)
		if ctx.Err() != nil {
			return
		}

		if authenticated {
			backoff = a.config.ReconnectMin
		}
		a.logger.Warn("Push channel down, polling until it is back",
			slog.Any("error", err),
			slog.Duration("retry_in", backoff),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if !authenticated {
			backoff = min(backoff*2, a.config.ReconnectMax)
		}
	}
}

// runSession dials, authenticates and dispatches inbound events until the connection fails
func (a *Agent) runSession(ctx context.Context) (authenticated bool, err error) {
	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	if !a.setConn(ctx, conn) {
		conn.Close()
		return false, ctx.Err()
	}
	defer func() {
		a.clearConn(conn)
		conn.Close()
	}()

	auth, err := realtime.NewEnvelope(realtime.EventAuthenticate, realtime.Authenticate{Credential: a.config.Token})
	if err != nil {
		return false, err
	}
	if err := conn.Write(auth); err != nil {
		return false, fmt.Errorf("failed to send credential: %w", err)
	}

	for {
		env, err := conn.Read()
		if err != nil {
			return a.live.Load(), err
		}

		handler, ok := a.handlers[env.Event]
		if !ok {
			a.logger.Debug("Ignoring unknown push event", slog.String("event", env.Event))
			continue
		}
		if err := handler(ctx, conn, env); err != nil {
			return a.live.Load(), err
		}
	}
}

func (a *Agent) setConn(ctx context.Context, conn PushConn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	a.conn = conn
	return true
}

func (a *Agent) clearConn(conn PushConn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == conn {
		a.conn = nil
	}
}

func (a *Agent) onAuthenticated(_ context.Context, _ PushConn, env realtime.Envelope) error {
	var ack realtime.Authenticated
	if err := env.Decode(&ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, ack.Error)
	}

	a.live.Store(true)
	a.logger.Info("Push channel live",
		slog.Int64("identity", ack.Identity),
		slog.Any("subscriptions", ack.Subscriptions),
	)

	// catch anything dispatched before registration
	a.triggerPoll()
	return nil
}

func (a *Agent) onJobReady(ctx context.Context, conn PushConn, env realtime.Envelope) error {
	var ready realtime.JobReady
	if err := env.Decode(&ready); err != nil {
		a.logger.Warn("Malformed job-ready event", slog.Any("error", err))
		return nil
	}

	received, err := realtime.NewEnvelope(realtime.EventJobReceived, realtime.JobReceived{ID: ready.ID})
	if err != nil {
		return err
	}
	if err := conn.Write(received); err != nil {
		return err
	}

	a.submit(ctx, jobFromEvent(ready), "push")
	return nil
}

func (a *Agent) onPing(_ context.Context, conn PushConn, env realtime.Envelope) error {
	var hb realtime.Heartbeat
	_ = env.Decode(&hb)

	pong, err := realtime.NewEnvelope(realtime.EventPong, hb)
	if err != nil {
		return err
	}
	return conn.Write(pong)
}

func (a *Agent) onPong(context.Context, PushConn, realtime.Envelope) error {
	return nil
}

func (a *Agent) onPresence(_ context.Context, _ PushConn, env realtime.Envelope) error {
	var presence realtime.Presence
	if err := env.Decode(&presence); err == nil {
		a.logger.Debug("Presence update", slog.Int("sessions", presence.Count))
	}
	return nil
}

func (a *Agent) onError(_ context.Context, _ PushConn, env realtime.Envelope) error {
	var event realtime.ErrorEvent
	_ = env.Decode(&event)
	a.logger.Warn("Server reported an error", slog.String("message", event.Message))
	return nil
}

func (a *Agent) triggerPoll() {
	select {
	case a.pollNow <- struct{}{}:
	default:
	}
}

func (a *Agent) pollInterval() time.Duration {
	if a.live.Load() {
		return a.config.SafetyPollInterval
	}
	return a.config.PollInterval
}

func (a *Agent) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.pollNow:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		a.poll(ctx)
		timer.Reset(a.pollInterval())
	}
}

func (a *Agent) poll(ctx context.Context) {
	jobs, err := a.api.ListReady(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("Failed to pull ready jobs", slog.Any("error", err))
		}
		return
	}

	for _, job := range jobs {
		a.submit(ctx, job, "pull")
	}
}

// submit starts executing job unless it is already running or recently finished
func (a *Agent) submit(ctx context.Context, job Job, source string) {
	a.mu.Lock()
	if _, running := a.inflight[job.ID]; running || a.recent.contains(job.ID) {
		a.mu.Unlock()
		a.logger.Debug("Duplicate job ignored",
			slog.Int64("job_id", job.ID),
			slog.String("source", source),
		)
		return
	}
	a.inflight[job.ID] = struct{}{}
	a.mu.Unlock()

	a.wg.Add(1)
	go a.execute(ctx, job, source)
}

func (a *Agent) execute(ctx context.Context, job Job, source string) {
	defer a.wg.Done()

	finished := false
	defer func() {
		a.mu.Lock()
		delete(a.inflight, job.ID)
		if finished {
			a.recent.add(job.ID)
		}
		a.mu.Unlock()
	}()

	if err := a.report(ctx, job.ID, domain.JobStatusProcessing, ""); err != nil {
		if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrNotFound) {
			a.logger.Info("Job no longer claimable, skipping",
				slog.Int64("job_id", job.ID),
				slog.String("reason", err.Error()),
			)
			finished = true
			return
		}
		a.logger.Warn("Failed to claim job, will retry on next poll",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}

	a.logger.Info("Executing job",
		slog.Int64("job_id", job.ID),
		slog.String("source", source),
		slog.String("document", job.DocumentName),
	)

	status, message := domain.JobStatusCompleted, ""
	if err := a.executor.Execute(ctx, job); err != nil {
		status, message = domain.JobStatusFailed, err.Error()
		a.logger.Error("Job execution failed",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
	}

	if err := a.report(ctx, job.ID, status, message); err != nil {
		a.logger.Error("Failed to report job outcome",
			slog.Int64("job_id", job.ID),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
	finished = true
}

// report outlives Stop so a job that ran still gets its outcome recorded
func (a *Agent) report(ctx context.Context, jobID int64, status domain.JobStatus, message string) error {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.ReportTimeout)
	defer cancel()
	return a.api.UpdateStatus(reportCtx, jobID, status, message)
}
