package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	called := false
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/test", nil), assert.AnError)

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestSetHTTPErrorResponderNilResets(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusTeapot)
	})
	SetHTTPErrorResponder(nil)

	assert.NotNil(t, httpErrorResponder)
}

func TestResetHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	customCalled := false
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		customCalled = true
	})
	ResetHTTPErrorResponder()

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/test", nil), assert.AnError)

	assert.False(t, customCalled)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
