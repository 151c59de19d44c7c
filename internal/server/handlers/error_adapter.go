package handlers

import (
	"net/http"

	"github.com/3leaps/subwatch/internal/apperrors"
)

// httpErrorResponder renders err as an HTTP response; overridable so
// callers (tests, or a host embedding this router) can substitute their
// own error-to-response mapping.
var httpErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder overrides how respondWithError renders an error.
// Passing nil resets to apperrors.RespondWithError.
func SetHTTPErrorResponder(fn func(w http.ResponseWriter, r *http.Request, err error)) {
	if fn == nil {
		httpErrorResponder = apperrors.RespondWithError
		return
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores the default apperrors-backed responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = apperrors.RespondWithError
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
