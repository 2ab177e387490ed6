package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/retailops/api/internal/platform/requestctx"
)

// Error is the JSON error envelope every endpoint returns.
type Error struct {
	Code      string         `json:"error"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewError builds an envelope; a zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, 80),
		Message: clean(message, 512),
		Status:  status,
	}
}

// WithDetails attaches a copy of details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// Common envelopes.
func BadRequest(code, message string) Error { return NewError(code, message, http.StatusBadRequest) }

func NotFound(code, message string) Error { return NewError(code, message, http.StatusNotFound) }

func Conflict(code, message string) Error { return NewError(code, message, http.StatusConflict) }

func Internal() Error {
	return NewError("internal_server_error", "internal server error", http.StatusInternalServerError)
}

// WriteError writes err, filling request and trace IDs from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	if err.RequestID == "" {
		err.RequestID = clean(middleware.GetReqID(ctx), 80)
	}
	if err.TraceID == "" {
		err.TraceID = clean(requestctx.TraceID(ctx), 64)
	}
	WriteJSON(w, err.Status, err)
}

func clean(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
