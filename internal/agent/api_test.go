package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_ListReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/jobs/ready", r.URL.Path)
		assert.Equal(t, "Bearer agent-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]dto.ReadyJobDTO{{
			ID:           4,
			DocumentName: "invoice.pdf",
			DocumentURL:  "https://files.example.com/invoice.pdf",
			PrinterName:  "Front Desk",
			Copies:       2,
			Orientation:  domain.OrientationLandscape,
		}})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", "agent-token", time.Second)
	jobs, err := client.ListReady(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, int64(4), jobs[0].ID)
	assert.Equal(t, "Front Desk", jobs[0].PrinterName)
	assert.Equal(t, 2, jobs[0].Copies)
	assert.Equal(t, domain.OrientationLandscape, jobs[0].Orientation)
}

func TestHTTPClient_UpdateStatus(t *testing.T) {
	var got dto.UpdateStatusRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/jobs/12/status", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "agent-token", time.Second)
	require.NoError(t, client.UpdateStatus(context.Background(), 12, domain.JobStatusFailed, "out of toner"))

	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "out of toner", got.Error)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "validation", status: http.StatusBadRequest, body: `{"error":"bad status","code":"validation_error"}`, want: domain.ErrValidation},
		{name: "unauthenticated", status: http.StatusUnauthorized, body: `{"error":"missing credential","code":"unauthenticated"}`, want: domain.ErrUnauthenticated},
		{name: "not found", status: http.StatusNotFound, body: `{"error":"job not found","code":"not_found"}`, want: domain.ErrNotFound},
		{name: "conflict", status: http.StatusConflict, body: `{"error":"already processing","code":"invalid_state"}`, want: domain.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewHTTPClient(srv.URL, "t", time.Second).UpdateStatus(context.Background(), 1, domain.JobStatusProcessing, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("server error keeps plain body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}))
		defer srv.Close()

		_, err := NewHTTPClient(srv.URL, "t", time.Second).ListReady(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
		assert.Contains(t, err.Error(), "upstream down")
	})
}

func TestNewWSDialer_URL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{server: "http://relay.local:8080", want: "ws://relay.local:8080/ws"},
		{server: "https://relay.example.com/print/", want: "wss://relay.example.com/print/ws"},
		{server: "ws://10.0.0.2", want: "ws://10.0.0.2/ws"},
	}

	for _, tt := range tests {
		d, err := NewWSDialer(tt.server, time.Second)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d.URL())
	}

	_, err := NewWSDialer("ftp://relay.local", time.Second)
	assert.Error(t, err)
}
