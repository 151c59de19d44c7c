package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct{ err error }

func (s stubChecker) CheckHealth(ctx context.Context) error { return s.err }

func TestHealthHandlerHealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("ok", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, StatusHealthy, resp.Checks["ok"])
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("db", stubChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDetermineOverallStatusDegradedOnTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	status := manager.determineOverallStatus(map[string]string{"db": StatusTimeout})
	assert.Equal(t, StatusDegraded, status)
}

func TestGlobalHandlersUninitialized(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()
	globalHealthManager = nil

	for _, h := range []http.HandlerFunc{HealthHandler, LivenessHandler, ReadinessHandler, StartupHandler} {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
}

func TestGlobalHandlersAfterInit(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()

	InitHealthManager("test-version")
	require.NotNil(t, GetHealthManager())

	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
