// Package httpx holds the JSON error envelope shared by every handler and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/requestctx"
)

const (
	codeLimit    = 80
	messageLimit = 512
	idLimit      = 80
	traceLimit   = 64
)

// Error is an API failure rendered as {"error", "message", "status", ...}.
type Error struct {
	Code       string
	Message    string
	Status     int
	RequestID  string
	TraceID    string
	RetryAfter int
	Details    map[string]any
}

type envelope struct {
	Code      string         `json:"error"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	RequestID string         `json:"requestId,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewError builds an Error; a zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, codeLimit),
		Message: clean(message, messageLimit),
		Status:  status,
	}
}

func (e Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, idLimit)
	return e
}

func (e Error) WithTraceID(id string) Error {
	e.TraceID = clean(id, traceLimit)
	return e
}

// WithRetryAfter sets the Retry-After header, in seconds, on the response.
func (e Error) WithRetryAfter(seconds int) Error {
	if seconds > 0 {
		e.RetryAfter = seconds
	}
	return e
}

// WithDetails attaches a copy of details under the "details" key.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError renders err, filling request and trace ids from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := envelope{
		Code:      err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: err.RequestID,
		TraceID:   err.TraceID,
		Details:   err.Details,
	}
	if body.RequestID == "" {
		body.RequestID = clean(middleware.GetReqID(ctx), idLimit)
	}
	if body.TraceID == "" {
		body.TraceID = clean(requestctx.TraceID(ctx), traceLimit)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clean flattens line breaks so messages cannot split log lines, then truncates.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
