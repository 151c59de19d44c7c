// Package middleware provides the chi-compatible HTTP middleware
// internal/server wraps every route with: request-id propagation and
// panic recovery rendered in the apperrors envelope.
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/3leaps/subwatch/internal/apperrors"
)

type ctxKey int

const requestIDKey ctxKey = iota

func init() {
	apperrors.RequestIDFromContext = RequestIDFromContext
}

// RequestID assigns each request an id, from the X-Request-ID header if
// the caller supplied one, else a generated uuid, and stores it in both
// the response header and the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id RequestID stored in ctx, or "" if
// none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ErrorResponse mirrors apperrors.HTTPErrorResponse for callers that only
// import this package.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery recovers a panic in next, logging nothing itself (the caller's
// observability layer wraps the server with its own access logging), and
// renders a 500 INTERNAL_ERROR in the standard error envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				msg := fmt.Sprintf("panic: %v", rec)
				apperrors.WriteJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", msg, RequestIDFromContext(r.Context()), nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name callers expect when composing a
// route group that only cares about converting panics to error responses.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// WriteErrorResponse writes code/message directly, bypassing the
// subwatcherr classification RespondWithError performs; used by handlers
// that already know the exact status to return.
func WriteErrorResponse(w http.ResponseWriter, code, message string, statusCode int) {
	apperrors.WriteJSON(w, statusCode, code, message, "", nil)
}
