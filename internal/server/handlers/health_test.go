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

	apperrors "github.com/3leaps/batchlog/internal/errors"
)

func healthy(context.Context) error { return nil }

func probe(t *testing.T, h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandlerReportsChecks(t *testing.T) {
	m := NewHealthManager("1.2.3")
	m.RegisterChecker("eventlog", HealthCheckerFunc(healthy))
	m.RegisterChecker("archive", HealthCheckerFunc(healthy))

	rec := probe(t, m.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, map[string]string{"eventlog": "healthy", "archive": "healthy"}, resp.Checks)
}

func TestHealthHandlerUnhealthyCheck(t *testing.T) {
	m := NewHealthManager("1.2.3")
	m.RegisterChecker("eventlog", HealthCheckerFunc(healthy))
	m.RegisterChecker("nats", HealthCheckerFunc(func(context.Context) error { return errors.New("nats CLOSED") }))

	rec := probe(t, m.HealthHandler, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeServiceUnavailable, body.Error.Code)
	checks, ok := body.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "unhealthy", checks["nats"])
	assert.Equal(t, "healthy", checks["eventlog"])
}

func TestHealthCheckTimeoutIsDegraded(t *testing.T) {
	m := NewHealthManager("dev")
	m.RegisterChecker("archive", HealthCheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checks := m.runChecks(ctx)
	// A cancelled parent is not a deadline, so it counts as unhealthy.
	assert.Equal(t, "unhealthy", checks["archive"])

	assert.Equal(t, "degraded", m.determineOverallStatus(map[string]string{"archive": "timeout", "eventlog": "healthy"}))
	assert.Equal(t, "unhealthy", m.determineOverallStatus(map[string]string{"archive": "timeout", "eventlog": "unhealthy"}))
}

func TestReadinessFollowsReplay(t *testing.T) {
	m := NewHealthManager("dev")
	m.SetReady(false)

	assert.Equal(t, http.StatusServiceUnavailable, probe(t, m.ReadinessHandler, "/health/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, probe(t, m.StartupHandler, "/health/startup").Code)
	assert.Equal(t, http.StatusOK, probe(t, m.LivenessHandler, "/health/live").Code)

	m.SetReady(true)
	assert.Equal(t, http.StatusOK, probe(t, m.ReadinessHandler, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, probe(t, m.StartupHandler, "/health/startup").Code)
}

func TestGlobalHandlers(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()

	globalHealthManager = nil
	assert.Nil(t, GetHealthManager())
	assert.Equal(t, http.StatusServiceUnavailable, probe(t, HealthHandler, "/health").Code)

	m := InitHealthManager("test-version")
	require.Same(t, m, GetHealthManager())
	assert.Equal(t, http.StatusOK, probe(t, HealthHandler, "/health").Code)
	assert.Equal(t, http.StatusOK, probe(t, LivenessHandler, "/health/live").Code)
	assert.Equal(t, http.StatusOK, probe(t, ReadinessHandler, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, probe(t, StartupHandler, "/health/startup").Code)
}
