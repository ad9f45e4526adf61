package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/api/handler"
	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/cuongbtq/print-relay/internal/identity"
	"github.com/cuongbtq/print-relay/internal/printjob"
	"github.com/cuongbtq/print-relay/internal/realtime"
	"github.com/cuongbtq/print-relay/internal/store"
	"github.com/cuongbtq/print-relay/shared/database"
	"github.com/cuongbtq/print-relay/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine  *gin.Engine
	store   *store.Store
	jwt     *identity.JWT
	pending *realtime.PendingQueue
	printer *domain.Printer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.NewDiscard().Logger
	client, err := database.NewMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	st := store.NewStorage(client.GetDB(), log)
	printer, err := st.UpsertPrinter(context.Background(), "front-desk", "Front Desk", domain.PrinterStatusOnline)
	require.NoError(t, err)

	registry := realtime.NewRegistry(log)
	pending := realtime.NewPendingQueue(100, time.Hour, log)
	dispatcher := realtime.NewDispatcher(registry, pending, log)
	verifier := identity.NewJWT("0123456789abcdef0123", "print-relay", time.Hour)
	hub := realtime.NewHub(realtime.HubConfig{AuthTimeout: 2 * time.Second}, dispatcher, verifier, log)
	t.Cleanup(hub.Close)

	deps := &handler.Dependencies{
		Logger:   log,
		DBClient: client,
		Service:  printjob.NewService(st, printjob.RemotePreparer{}, dispatcher, nil, log),
		Hub:      hub,
		Lookup:   verifier,
	}

	return &testServer{
		engine:  SetupRouter(deps, nil),
		store:   st,
		jwt:     verifier,
		pending: pending,
		printer: printer,
	}
}

func (s *testServer) token(t *testing.T, id int64) string {
	t.Helper()
	token, err := s.jwt.Issue(id, "tester")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func submitBody(printerExternalID string) map[string]any {
	return map[string]any{
		"printerExternalId": printerExternalID,
		"documentUrl":       "https://files.example.com/invoices/INV-001.pdf",
		"options": map[string]any{
			"copies":      2,
			"duplex":      false,
			"orientation": "portrait",
		},
	}
}

func (s *testServer) submit(t *testing.T, token string) dto.SubmitJobResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/jobs", token, submitBody(s.printer.ExternalID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.SubmitJobResponse](t, rec)
}

func TestSubmitThenPull(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7)

	created := s.submit(t, token)
	assert.Equal(t, domain.JobStatusReady, created.Status)
	assert.Equal(t, "front-desk", created.Printer.ExternalID)
	assert.Equal(t, domain.PrinterStatusBusy, created.Printer.Status)

	// the owner has no push session, so the event waits in the pending queue
	assert.Equal(t, 1, s.pending.Len(7))

	rec := s.do(t, http.MethodGet, "/api/v1/jobs/ready", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[[]dto.ReadyJobDTO](t, rec)
	require.Len(t, ready, 1)
	assert.Equal(t, created.ID, ready[0].ID)
	assert.Equal(t, 2, ready[0].Copies)
	assert.Equal(t, "INV-001.pdf", ready[0].DocumentName)
	assert.Equal(t, "Front Desk", ready[0].PrinterName)
	require.NotNil(t, ready[0].PreparedPayload)
	assert.Equal(t, domain.FlavorRemoteReference, ready[0].PreparedPayload.Data[0].Flavor)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs/ready", s.token(t, 8), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSubmit_Errors(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7)

	offline, err := s.store.UpsertPrinter(context.Background(), "basement", "Basement", domain.PrinterStatusOnline)
	require.NoError(t, err)
	_, err = s.store.SetPrinterStatus(context.Background(), offline.ID, domain.PrinterStatusOffline)
	require.NoError(t, err)

	badURL := submitBody("front-desk")
	badURL["documentUrl"] = "ftp://files.example.com/a.pdf"

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown printer",
			body:       submitBody("nowhere"),
			wantStatus: http.StatusNotFound,
			wantCode:   handler.CodeNotFound,
		},
		{
			name:       "offline printer",
			body:       submitBody("basement"),
			wantStatus: http.StatusConflict,
			wantCode:   handler.CodeInvalidState,
		},
		{
			name:       "unsupported url scheme",
			body:       badURL,
			wantStatus: http.StatusBadRequest,
			wantCode:   handler.CodeValidation,
		},
		{
			name:       "malformed body",
			body:       `{"documentUrl":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   handler.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/jobs", token, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[dto.ErrorResponse](t, rec).Code)
		})
	}

	count, err := s.store.CountJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/jobs/ready", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handler.CodeUnauthenticated, decode[dto.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs/ready", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[dto.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "up", health.Database)
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7)
	created := s.submit(t, token)
	path := "/api/v1/jobs/" + itoa(created.ID) + "/status"

	rec := s.do(t, http.MethodPut, path, token, map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.JobStatusProcessing, decode[dto.JobDTO](t, rec).Status)

	// a second claimer loses
	rec = s.do(t, http.MethodPut, path, token, map[string]string{"status": "processing"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, handler.CodeInvalidState, decode[dto.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs/ready", token, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodPut, path, token, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[dto.JobDTO](t, rec)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	rec = s.do(t, http.MethodPut, path, token, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[dto.JobDTO](t, rec)
	assert.True(t, done.CompletedAt.Equal(*again.CompletedAt))

	rec = s.do(t, http.MethodPut, path, token, map[string]string{"status": "failed", "error": "x"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeInvalidState, decode[dto.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPut, path, token, map[string]string{"status": "ready"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path, s.token(t, 8), map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/jobs/abc/status", token, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/printers", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	printers := decode[[]dto.PrinterDTO](t, rec)
	require.Len(t, printers, 1)
	assert.Equal(t, domain.PrinterStatusOnline, printers[0].Status)
}

func TestGetJobAndHistory(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7)
	created := s.submit(t, token)
	path := "/api/v1/jobs/" + itoa(created.ID)

	rec := s.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[dto.JobDTO](t, rec)
	assert.Equal(t, "https://files.example.com/invoices/INV-001.pdf", job.DocumentURL)
	assert.Equal(t, s.printer.ID, job.PrinterID)

	rec = s.do(t, http.MethodGet, path, s.token(t, 8), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, path+"/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/jobs/9999/history", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs_Pagination(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7)

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, s.submit(t, token).ID)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/jobs?page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[dto.ListJobsResponse](t, rec)
	require.Len(t, first.Jobs, 2)
	assert.Equal(t, ids[2], first.Jobs[0].ID)
	require.NotEmpty(t, first.NextCursor)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?page_size=2&cursor="+first.NextCursor, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[dto.ListJobsResponse](t, rec)
	require.Len(t, second.Jobs, 1)
	assert.Equal(t, ids[0], second.Jobs[0].ID)
	assert.Empty(t, second.NextCursor)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?status=ready", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.ListJobsResponse](t, rec).Jobs, 3)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?cursor=bm9wZQ", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?status=queued", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrinterEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 1)

	rec := s.do(t, http.MethodPost, "/api/v1/printers", token, map[string]string{"externalId": "label-1", "name": "Labels"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	printer := decode[dto.PrinterDTO](t, rec)
	assert.Equal(t, domain.PrinterStatusOnline, printer.Status)

	path := "/api/v1/printers/" + itoa(printer.ID) + "/status"

	rec = s.do(t, http.MethodPut, path, token, map[string]string{"status": "offline"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PrinterStatusOffline, decode[dto.PrinterDTO](t, rec).Status)

	rec = s.do(t, http.MethodPut, path, token, map[string]string{"status": "busy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/printers/9999/status", token, map[string]string{"status": "online"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/printers", token, map[string]string{"name": "No id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPushChannelThroughRouter(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7)
	created := s.submit(t, token)

	server := httptest.NewServer(s.engine)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	auth, err := realtime.NewEnvelope(realtime.EventAuthenticate, realtime.Authenticate{Credential: token})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(auth))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var frame realtime.Envelope
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, realtime.EventJobReady, frame.Event)
	var ready realtime.JobReady
	require.NoError(t, frame.Decode(&ready))
	assert.Equal(t, created.ID, ready.ID)

	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, realtime.EventAuthenticated, frame.Event)
	var ack realtime.Authenticated
	require.NoError(t, frame.Decode(&ack))
	assert.True(t, ack.Success)
	assert.Equal(t, int64(7), ack.Identity)
	assert.Zero(t, s.pending.Len(7))

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.engine.ServeHTTP(rec, req)

		var presence realtime.Presence
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &presence) == nil &&
			presence.Count == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
