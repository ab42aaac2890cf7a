package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckerAllPassing(t *testing.T) {
	h := NewHealthChecker()
	h.AddProbe("postgres", func() error { return nil })
	h.AddProbe("redis", func() error { return nil })

	assert.Empty(t, h.Healthy())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "failing")
}

func TestHealthCheckerReportsFailures(t *testing.T) {
	h := NewHealthChecker()
	h.AddProbe("postgres", func() error { return nil })
	h.AddProbe("feed", func() error { return errors.New("feed failed permanently") })

	failing := h.Healthy()
	require.Len(t, failing, 1)
	assert.Equal(t, "feed failed permanently", failing["feed"])

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}

func TestHealthCheckerReplacesProbeByName(t *testing.T) {
	h := NewHealthChecker()
	h.AddProbe("feed", func() error { return errors.New("down") })
	require.Len(t, h.Healthy(), 1)

	h.AddProbe("feed", func() error { return nil })
	assert.Empty(t, h.Healthy())
}
