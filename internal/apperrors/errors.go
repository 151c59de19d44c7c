// Package apperrors renders subwatch's internal error taxonomy as the
// HTTP error envelope every handler in internal/server returns.
package apperrors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/3leaps/subwatch/pkg/subwatcherr"
)

// ErrorDetail is the body of an HTTPErrorResponse.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON shape every error response in
// internal/server carries.
type HTTPErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// WriteJSON writes status and an HTTPErrorResponse built from its
// arguments to w.
func WriteJSON(w http.ResponseWriter, status int, code, message, requestID string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, RequestID: requestID, Details: details},
	})
}

// RequestIDFromContext, set by middleware.RequestID, is looked up via this
// function var rather than importing internal/server/middleware directly,
// to avoid a dependency cycle (middleware wraps handlers that call back
// into this package).
var RequestIDFromContext func(ctx context.Context) string

func requestID(r *http.Request) string {
	if RequestIDFromContext == nil {
		return ""
	}
	return RequestIDFromContext(r.Context())
}

// RespondWithError classifies err against the subwatcherr sentinel
// taxonomy and writes the matching HTTP status and error code; anything
// unrecognized renders as a 500 INTERNAL_ERROR.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	id := requestID(r)
	switch {
	case subwatcherr.IsNotFound(err):
		WriteJSON(w, http.StatusNotFound, "NOT_FOUND", err.Error(), id, nil)
	case subwatcherr.IsDuplicate(err):
		WriteJSON(w, http.StatusConflict, "CONFLICT", err.Error(), id, nil)
	case subwatcherr.IsInvalidQuery(err):
		WriteJSON(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), id, nil)
	case subwatcherr.IsAlreadyPaused(err):
		WriteJSON(w, http.StatusConflict, "ALREADY_PAUSED", err.Error(), id, nil)
	case subwatcherr.IsTooManyRefresh(err):
		WriteJSON(w, http.StatusTooManyRequests, "TOO_MANY_REFRESH", err.Error(), id, nil)
	case subwatcherr.IsShutdown(err):
		WriteJSON(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error(), id, nil)
	default:
		WriteJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), id, nil)
	}
}

// NotFoundHandler renders a standalone 404 in the HTTPErrorResponse shape,
// for router-level not-found registration.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, "NOT_FOUND", "no such route", requestID(r), nil)
}

// MethodNotAllowedHandler renders a standalone 405 in the
// HTTPErrorResponse shape, for router-level method-not-allowed
// registration.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed on this route", requestID(r), nil)
}
