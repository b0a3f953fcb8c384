package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/serverdb"
)

// ApplyRequest is the JSON body for POST /v1/sync/apply.
type ApplyRequest struct {
	DeviceID   string             `json:"device_id"`
	Operations []models.Operation `json:"operations"`
}

// ConflictsResponse is the JSON body for GET /v1/sync/conflicts.
type ConflictsResponse struct {
	Conflicts []models.ConflictRecord `json:"conflicts"`
}

// DevicesResponse is the JSON body for GET /v1/admin/devices.
type DevicesResponse struct {
	Devices []serverdb.DeviceCursor `json:"devices"`
}

// validateOperation rejects structurally broken operations. Semantic
// problems (missing patch, unknown event) become conflict records instead.
func validateOperation(op models.Operation) error {
	switch {
	case op.ID == "":
		return fmt.Errorf("operation id is required")
	case op.EventID == "":
		return fmt.Errorf("operation %s: event_id is required", op.ID)
	case op.ActorID == "":
		return fmt.Errorf("operation %s: actor_id is required", op.ID)
	case !op.Kind.IsValid():
		return fmt.Errorf("operation %s: invalid kind %q", op.ID, op.Kind)
	case op.Timestamp.IsZero():
		return fmt.Errorf("operation %s: timestamp is required", op.ID)
	}
	if op.Patch != nil && op.Patch.Type != nil && !op.Patch.Type.IsValid() {
		return fmt.Errorf("operation %s: invalid event type %q", op.ID, *op.Patch.Type)
	}
	return nil
}

// handleApply handles POST /v1/sync/apply.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrCodeBadRequest, "invalid json body")
		return
	}
	if len(req.Operations) > s.config.MaxBatch {
		writeError(w, ErrCodeBatchTooLarge,
			fmt.Sprintf("batch size %d exceeds max %d", len(req.Operations), s.config.MaxBatch))
		return
	}
	for _, op := range req.Operations {
		if err := validateOperation(op); err != nil {
			writeError(w, ErrCodeBadRequest, err.Error())
			return
		}
	}

	res, err := s.store.Apply(r.Context(), req.Operations)
	if err != nil {
		logFor(r.Context()).Error("apply batch", "err", err, "ops", len(req.Operations))
		writeError(w, ErrCodeInternal, "failed to apply operations")
		return
	}
	s.metrics.RecordBatch(len(res.Applied), len(res.Conflicts), len(res.Duplicates))
	s.touchDevice(r, req.DeviceID, res.ServerVersion)

	logFor(r.Context()).Info("apply",
		"ops", len(req.Operations),
		"applied", len(res.Applied),
		"conflicts", len(res.Conflicts),
		"duplicates", len(res.Duplicates),
		"version", res.ServerVersion)
	writeJSON(w, http.StatusOK, res)
}

// handleState handles GET /v1/sync/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.State(r.Context())
	if err != nil {
		logFor(r.Context()).Error("read state", "err", err)
		writeError(w, ErrCodeInternal, "failed to read state")
		return
	}
	s.metrics.RecordState()
	s.touchDevice(r, "", state.Version)
	writeJSON(w, http.StatusOK, state)
}

// handleConflicts handles GET /v1/sync/conflicts?event_id=&actor_id=&limit=.
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := serverdb.ConflictFilter{EventID: q.Get("event_id"), ActorID: q.Get("actor_id")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	records, err := s.store.QueryConflicts(r.Context(), f)
	if err != nil {
		logFor(r.Context()).Error("query conflicts", "err", err)
		writeError(w, ErrCodeInternal, "failed to query conflicts")
		return
	}
	if records == nil {
		records = []models.ConflictRecord{}
	}
	writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: records})
}

// handleDevices handles GET /v1/admin/devices.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDeviceCursors(r.Context())
	if err != nil {
		logFor(r.Context()).Error("list devices", "err", err)
		writeError(w, ErrCodeInternal, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []serverdb.DeviceCursor{}
	}
	writeJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
}

// handleReset handles POST /v1/admin/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowReset {
		writeError(w, ErrCodeForbidden, "reset is disabled on this server")
		return
	}
	if err := s.store.Reset(r.Context()); err != nil {
		logFor(r.Context()).Error("reset", "err", err)
		writeError(w, ErrCodeInternal, "failed to reset")
		return
	}
	logFor(r.Context()).Warn("authority reset by request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// touchDevice records the caller's sync position. Failures only get logged.
func (s *Server) touchDevice(r *http.Request, deviceID string, version int64) {
	if deviceID == "" {
		deviceID = deviceFromContext(r.Context())
	}
	if deviceID == "" {
		return
	}
	if err := s.store.UpsertDeviceCursor(r.Context(), deviceID, version); err != nil {
		logFor(r.Context()).Warn("update device cursor", "err", err)
	}
}
