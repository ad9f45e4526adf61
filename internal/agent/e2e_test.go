package agent

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/api/handler"
	"github.com/cuongbtq/print-relay/internal/api/router"
	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/cuongbtq/print-relay/internal/identity"
	"github.com/cuongbtq/print-relay/internal/printjob"
	"github.com/cuongbtq/print-relay/internal/realtime"
	"github.com/cuongbtq/print-relay/internal/store"
	"github.com/cuongbtq/print-relay/shared/database"
	"github.com/cuongbtq/print-relay/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relay struct {
	url     string
	store   *store.Store
	service *printjob.Service
	jwt     *identity.JWT
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewDiscard().Logger
	client, err := database.NewMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	st := store.NewStorage(client.GetDB(), log)
	_, err = st.UpsertPrinter(context.Background(), "front-desk", "Front Desk", domain.PrinterStatusOnline)
	require.NoError(t, err)

	registry := realtime.NewRegistry(log)
	pending := realtime.NewPendingQueue(100, time.Hour, log)
	dispatcher := realtime.NewDispatcher(registry, pending, log)
	verifier := identity.NewJWT("0123456789abcdef0123", "print-relay", time.Hour)
	hub := realtime.NewHub(realtime.HubConfig{AuthTimeout: 2 * time.Second}, dispatcher, verifier, log)
	service := printjob.NewService(st, printjob.RemotePreparer{}, dispatcher, nil, log)

	srv := httptest.NewServer(router.SetupRouter(&handler.Dependencies{
		Logger:   log,
		DBClient: client,
		Service:  service,
		Hub:      hub,
		Lookup:   verifier,
	}, nil))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	return &relay{url: srv.URL, store: st, service: service, jwt: verifier}
}

func (r *relay) startAgent(t *testing.T, owner int64, exec Executor) *Agent {
	t.Helper()

	token, err := r.jwt.Issue(owner, "front-desk-agent")
	require.NoError(t, err)

	dialer, err := NewWSDialer(r.url, time.Minute)
	require.NoError(t, err)

	a := New(Config{
		Token:              token,
		PollInterval:       time.Hour,
		SafetyPollInterval: time.Hour,
		ReconnectMin:       20 * time.Millisecond,
		ReconnectMax:       100 * time.Millisecond,
		ReportTimeout:      2 * time.Second,
	}, NewHTTPClient(r.url, token, 2*time.Second), dialer, exec, logger.NewDiscard().Logger)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)
	return a
}

func (r *relay) submit(t *testing.T, owner int64) int64 {
	t.Helper()
	res, err := r.service.Submit(context.Background(), domain.Submission{
		OwnerID:     owner,
		Printer:     domain.PrinterRef{ExternalID: "front-desk"},
		DocumentURL: "https://files.example.com/invoices/INV-001.pdf",
	})
	require.NoError(t, err)
	return res.Job.ID
}

func (r *relay) waitForStatus(t *testing.T, jobID, owner int64, want domain.JobStatus) *domain.PrintJob {
	t.Helper()
	var job *domain.PrintJob
	require.Eventually(t, func() bool {
		got, err := r.store.GetJobForOwner(context.Background(), jobID, owner)
		if err != nil {
			return false
		}
		job = got
		return got.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestEndToEnd_PushDelivery(t *testing.T) {
	r := newRelay(t)
	exec := newFakeExecutor()

	a := r.startAgent(t, 7, exec)
	require.Eventually(t, a.Live, 5*time.Second, 10*time.Millisecond)

	jobID := r.submit(t, 7)
	r.waitForStatus(t, jobID, 7, domain.JobStatusCompleted)

	assert.Equal(t, 1, exec.runsFor(jobID))
}

func TestEndToEnd_JobQueuedBeforeAgentConnects(t *testing.T) {
	r := newRelay(t)
	exec := newFakeExecutor()

	jobID := r.submit(t, 7)

	// delivered by both the pending flush and the startup pull; runs once
	r.startAgent(t, 7, exec)
	r.waitForStatus(t, jobID, 7, domain.JobStatusCompleted)

	assert.Equal(t, 1, exec.runsFor(jobID))
}

func TestEndToEnd_FailureReported(t *testing.T) {
	r := newRelay(t)
	exec := newFakeExecutor()
	exec.err = assert.AnError

	a := r.startAgent(t, 7, exec)
	require.Eventually(t, a.Live, 5*time.Second, 10*time.Millisecond)

	jobID := r.submit(t, 7)
	job := r.waitForStatus(t, jobID, 7, domain.JobStatusFailed)

	assert.Equal(t, assert.AnError.Error(), job.ErrorMessage)
}

func TestEndToEnd_TwoAgentsRunJobOnce(t *testing.T) {
	r := newRelay(t)
	first, second := newFakeExecutor(), newFakeExecutor()

	jobID := r.submit(t, 7)

	r.startAgent(t, 7, first)
	r.startAgent(t, 7, second)
	r.waitForStatus(t, jobID, 7, domain.JobStatusCompleted)

	assert.Equal(t, 1, first.runsFor(jobID)+second.runsFor(jobID))
}
