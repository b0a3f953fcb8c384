package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/carelog/internal/models"
	clsync "github.com/marcus/carelog/internal/sync"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrRateLimited  = errors.New("rate limited")
)

const deviceHeader = "X-Device-ID"

var _ clsync.Authority = (*Client)(nil)

// Client is an HTTP client for the carelog-sync authority.
type Client struct {
	BaseURL    string
	DeviceID   string
	AdminToken string
	HTTP       *http.Client
}

// New creates a new sync client.
func New(baseURL, deviceID string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// applyRequest mirrors the authority's POST /v1/sync/apply body.
type applyRequest struct {
	DeviceID   string             `json:"device_id"`
	Operations []models.Operation `json:"operations"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// DeviceCursor is one row of GET /v1/admin/devices.
type DeviceCursor struct {
	DeviceID    string     `json:"device_id"`
	LastVersion int64      `json:"last_version"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/healthz", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Apply submits one batch of operations.
func (c *Client) Apply(ctx context.Context, ops []models.Operation) (models.SyncResult, error) {
	var res models.SyncResult
	err := c.do(ctx, "POST", "/v1/sync/apply", applyRequest{DeviceID: c.DeviceID, Operations: ops}, &res, false)
	return res, err
}

// State fetches the authoritative snapshot.
func (c *Client) State(ctx context.Context) (models.ServerState, error) {
	var st models.ServerState
	err := c.do(ctx, "GET", "/v1/sync/state", nil, &st, false)
	return st, err
}

// Reset wipes the authority. The server must have resets enabled.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, "POST", "/v1/admin/reset", nil, nil, true)
}

// Conflicts queries the authority's conflict audit log. Empty filters match all.
func (c *Client) Conflicts(ctx context.Context, eventID, actorID string, limit int) ([]models.ConflictRecord, error) {
	params := url.Values{}
	if eventID != "" {
		params.Set("event_id", eventID)
	}
	if actorID != "" {
		params.Set("actor_id", actorID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/sync/conflicts"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp struct {
		Conflicts []models.ConflictRecord `json:"conflicts"`
	}
	if err := c.do(ctx, "GET", path, nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Conflicts, nil
}

// Devices lists the sync cursors of every device the authority has seen.
func (c *Client) Devices(ctx context.Context) ([]DeviceCursor, error) {
	var resp struct {
		Devices []DeviceCursor `json:"devices"`
	}
	if err := c.do(ctx, "GET", "/v1/admin/devices", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Unwrap maps the status to a sentinel. Client errors other than 429 also
// match clsync.ErrRejected so the orchestrator does not retry them.
func (e *apiError) Unwrap() []error {
	var sentinel error
	switch e.Status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		sentinel = ErrBadRequest
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case http.StatusForbidden:
		sentinel = ErrForbidden
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		return []error{ErrRateLimited}
	default:
		return nil
	}
	return []error{sentinel, clsync.ErrRejected}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, admin bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.DeviceID != "" {
		req.Header.Set(deviceHeader, c.DeviceID)
	}
	if admin && c.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error apiError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Code != "" {
			envelope.Error.Status = resp.StatusCode
			return &envelope.Error
		}
		return &apiError{
			Status:  resp.StatusCode,
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: strings.TrimSpace(string(respBody)),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
