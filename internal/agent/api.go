package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/domain"
)

// JobAPI is the agent's view of the print server's HTTP interface
type JobAPI interface {
	ListReady(ctx context.Context) ([]Job, error)
	UpdateStatus(ctx context.Context, jobID int64, status domain.JobStatus, errMsg string) error
}

// HTTPClient calls the print server with a bearer credential
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the server at serverURL
func NewHTTPClient(serverURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListReady pulls the caller's ready jobs
func (c *HTTPClient) ListReady(ctx context.Context) ([]Job, error) {
	var summaries []dto.ReadyJobDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/ready", nil, &summaries); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(summaries))
	for _, s := range summaries {
		jobs = append(jobs, jobFromSummary(s))
	}
	return jobs, nil
}

// UpdateStatus reports an execution status for a job
func (c *HTTPClient) UpdateStatus(ctx context.Context, jobID int64, status domain.JobStatus, errMsg string) error {
	body := dto.UpdateStatusRequest{Status: string(status), Error: errMsg}
	path := "/api/v1/jobs/" + strconv.FormatInt(jobID, 10) + "/status"
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// statusError maps an error response onto the domain error taxonomy
func statusError(resp *http.Response) error {
	var body dto.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrValidation, body.Error)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, body.Error)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body.Error)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrInvalidState, body.Error)
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
}
