package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/serverdb"
	_ "modernc.org/sqlite"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// newTestServer creates a Server backed by a temp database for testing.
func newTestServer(t *testing.T) (*Server, *serverdb.ServerDB) {
	return newTestServerWithConfig(t, nil)
}

// newTestServerWithConfig creates a test server with a custom config modifier.
func newTestServerWithConfig(t *testing.T, modCfg func(*Config)) (*Server, *serverdb.ServerDB) {
	t.Helper()
	store, err := serverdb.Open(filepath.Join(t.TempDir(), "authority.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		ListenAddr:     ":0",
		RateLimitApply: 100000,
		RateLimitState: 100000,
		RateLimitOther: 100000,
		MaxBatch:       500,
	}
	if modCfg != nil {
		modCfg(&cfg)
	}

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv, store
}

func doRequest(srv *Server, method, path, device string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if device != "" {
		req.Header.Set(DeviceHeader, device)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func strp(s string) *string { return &s }

func createOp(id, actor, event string, ts time.Time) models.Operation {
	typ := models.EventFeed
	start := ts
	return models.Operation{
		ID: id, Timestamp: ts, ActorID: actor, Kind: models.OpCreate, EventID: event,
		Patch: &models.Patch{CaregiverID: strp(actor), Type: &typ, Start: &start},
	}
}

func updateOp(id, actor, event string, ts time.Time, base int64, notes string) models.Operation {
	return models.Operation{
		ID: id, Timestamp: ts, ActorID: actor, Kind: models.OpUpdate, EventID: event,
		Patch: &models.Patch{Notes: strp(notes)}, BaseVersion: base,
	}
}

func apply(t *testing.T, srv *Server, device string, ops ...models.Operation) models.SyncResult {
	t.Helper()
	w := doRequest(srv, "POST", "/v1/sync/apply", device, ApplyRequest{DeviceID: device, Operations: ops})
	if w.Code != http.StatusOK {
		t.Fatalf("apply: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res models.SyncResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode apply: %v", err)
	}
	return res
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "GET", "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc123" {
		t.Fatalf("request id: got %q", got)
	}
}

func TestApplyAndState(t *testing.T) {
	srv, _ := newTestServer(t)

	res := apply(t, srv, "dev-a", createOp("op1", "alice", "e1", t0), createOp("op2", "alice", "e2", t0.Add(time.Minute)))
	if len(res.Applied) != 2 || res.ServerVersion != 2 {
		t.Fatalf("result: %+v", res)
	}

	w := doRequest(srv, "GET", "/v1/sync/state", "dev-a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("state: expected 200, got %d", w.Code)
	}
	var state models.ServerState
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Version != 2 || len(state.Events) != 2 {
		t.Fatalf("state: %+v", state)
	}
	if state.Events[0].ID != "e1" || state.Events[0].Version != 1 {
		t.Fatalf("first event: %+v", state.Events[0])
	}
}

func TestApplyEditConflict(t *testing.T) {
	srv, _ := newTestServer(t)

	apply(t, srv, "dev-a", createOp("op0", "alice", "e1", t0))
	apply(t, srv, "dev-a", updateOp("opA", "alice", "e1", t0.Add(5*time.Minute), 1, "from alice"))
	res := apply(t, srv, "dev-b", updateOp("opB", "bob", "e1", t0.Add(6*time.Minute), 1, "from bob"))

	if len(res.Conflicts) != 1 || res.Conflicts[0].Winner != models.WinnerLocal {
		t.Fatalf("conflicts: %+v", res.Conflicts)
	}
	if res.ServerVersion != 3 {
		t.Fatalf("server version: got %d, want 3", res.ServerVersion)
	}

	w := doRequest(srv, "GET", "/v1/sync/conflicts?event_id=e1", "dev-b", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("conflicts: expected 200, got %d", w.Code)
	}
	var cr ConflictsResponse
	json.NewDecoder(w.Body).Decode(&cr)
	if len(cr.Conflicts) != 1 || cr.Conflicts[0].OperationID != "opB" {
		t.Fatalf("conflict audit: %+v", cr.Conflicts)
	}
}

func TestConflictsEmptyAndBadLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "GET", "/v1/sync/conflicts", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"conflicts":[]`) {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}

	w = doRequest(srv, "GET", "/v1/sync/conflicts?limit=zero", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestApplyResubmissionIsDuplicate(t *testing.T) {
	srv, _ := newTestServer(t)

	op := createOp("op1", "alice", "e1", t0)
	apply(t, srv, "dev-a", op)
	res := apply(t, srv, "dev-a", op)
	if len(res.Applied) != 0 || len(res.Duplicates) != 1 || res.Duplicates[0] != "op1" {
		t.Fatalf("resubmission: %+v", res)
	}
	if res.ServerVersion != 1 {
		t.Fatalf("version moved on duplicate: %d", res.ServerVersion)
	}
}

func TestApplyValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		op   models.Operation
	}{
		{"missing id", models.Operation{EventID: "e1", ActorID: "a", Kind: models.OpCreate, Timestamp: t0}},
		{"missing event", models.Operation{ID: "x", ActorID: "a", Kind: models.OpCreate, Timestamp: t0}},
		{"missing actor", models.Operation{ID: "x", EventID: "e1", Kind: models.OpCreate, Timestamp: t0}},
		{"bad kind", models.Operation{ID: "x", EventID: "e1", ActorID: "a", Kind: "upsert", Timestamp: t0}},
		{"no timestamp", models.Operation{ID: "x", EventID: "e1", ActorID: "a", Kind: models.OpDelete}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(srv, "POST", "/v1/sync/apply", "dev", ApplyRequest{Operations: []models.Operation{tt.op}})
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if code := errorCode(t, w); code != ErrCodeBadRequest {
				t.Fatalf("code: %s", code)
			}
		})
	}

	req := httptest.NewRequest("POST", "/v1/sync/apply", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid json: expected 400, got %d", w.Code)
	}
}

func TestApplyBatchTooLarge(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) { cfg.MaxBatch = 2 })

	ops := []models.Operation{
		createOp("op1", "a", "e1", t0),
		createOp("op2", "a", "e2", t0),
		createOp("op3", "a", "e3", t0),
	}
	w := doRequest(srv, "POST", "/v1/sync/apply", "dev", ApplyRequest{Operations: ops})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if code := errorCode(t, w); code != ErrCodeBatchTooLarge {
		t.Fatalf("code: %s", code)
	}
}

func TestDeviceCursorTracked(t *testing.T) {
	srv, store := newTestServer(t)

	apply(t, srv, "dev-a", createOp("op1", "alice", "e1", t0))
	cur, err := store.GetDeviceCursor(context.Background(), "dev-a")
	if err != nil || cur == nil {
		t.Fatalf("cursor: %v %v", cur, err)
	}
	if cur.LastVersion != 1 {
		t.Fatalf("cursor version: %d", cur.LastVersion)
	}

	w := doRequest(srv, "GET", "/v1/admin/devices", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("devices: expected 200, got %d", w.Code)
	}
	var dr DevicesResponse
	json.NewDecoder(w.Body).Decode(&dr)
	if len(dr.Devices) != 1 || dr.Devices[0].DeviceID != "dev-a" {
		t.Fatalf("devices: %+v", dr.Devices)
	}
}

func TestResetDisabledByDefault(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, "POST", "/v1/admin/reset", "", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestResetRequiresAdminToken(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.AllowReset = true
		cfg.AdminToken = "s3cret"
	})
	apply(t, srv, "dev-a", createOp("op1", "alice", "e1", t0))

	w := doRequest(srv, "POST", "/v1/admin/reset", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/v1/admin/reset", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong token: expected 403, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/v1/admin/reset", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "GET", "/v1/sync/state", "", nil)
	var state models.ServerState
	json.NewDecoder(w.Body).Decode(&state)
	if state.Version != 0 || len(state.Events) != 0 {
		t.Fatalf("state after reset: %+v", state)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	apply(t, srv, "dev-a", createOp("op1", "alice", "e1", t0))
	doRequest(srv, "GET", "/v1/sync/state", "dev-a", nil)

	w := doRequest(srv, "GET", "/metricz", "", nil)
	var snap MetricsSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.Batches != 1 || snap.OpsApplied != 1 || snap.StateRequests != 1 {
		t.Fatalf("metrics: %+v", snap)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.CORSAllowedOrigins = []string{"https://dash.example"}
	})

	req := httptest.NewRequest("OPTIONS", "/v1/sync/state", nil)
	req.Header.Set("Origin", "https://dash.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("allow origin: %q", got)
	}

	req = httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
}

func TestPanicRecovered(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestServerStartShutdown(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) { cfg.ListenAddr = "127.0.0.1:0" })
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestWriteErrorStatusFollowsCode(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeBatchTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{"something_new", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, tt.code, "msg")
		if w.Code != tt.status {
			t.Errorf("%s: status %d, want %d", tt.code, w.Code, tt.status)
		}
		if got := errorCode(t, w); got != tt.code {
			t.Errorf("%s: envelope code %q", tt.code, got)
		}
	}
}
