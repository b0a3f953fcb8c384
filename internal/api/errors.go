package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes carried in the "code" field of the error envelope. Clients
// match on these, never on the message.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeInternal      = "internal"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeForbidden     = "forbidden"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeBatchTooLarge = "batch_too_large"
)

// codeStatus fixes the HTTP status for each code so handlers cannot pair a
// code with the wrong status.
var codeStatus = map[string]int{
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeUnauthorized:  http.StatusUnauthorized,
	ErrCodeForbidden:     http.StatusForbidden,
	ErrCodeRateLimited:   http.StatusTooManyRequests,
	ErrCodeBatchTooLarge: http.StatusRequestEntityTooLarge,
}

// APIError is the body of a failed carelog-sync request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope: {"error":{"code":...,"message":...}}.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

func writeError(w http.ResponseWriter, code, message string) {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "status", status, "err", err)
	}
}
