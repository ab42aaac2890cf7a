package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Probe checks one dependency and returns an error when it is unhealthy.
type Probe func() error

// HealthChecker aggregates named probes into the /healthz endpoint. Probes
// are evaluated on each request; any failure yields a 503.
type HealthChecker struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewHealthChecker creates an empty HealthChecker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{probes: make(map[string]Probe)}
}

// AddProbe registers a named probe. Re-registering a name replaces the probe.
func (h *HealthChecker) AddProbe(name string, p Probe) {
	h.mu.Lock()
	h.probes[name] = p
	h.mu.Unlock()
}

// Healthy evaluates all probes and returns the names of the failing ones.
func (h *HealthChecker) Healthy() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failing := make(map[string]string)
	for name, probe := range h.probes {
		if err := probe(); err != nil {
			failing[name] = err.Error()
		}
	}
	return failing
}

// ServeHTTP responds with a JSON health summary: 200 when every probe
// passes, 503 otherwise.
// GET /healthz
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	failing := h.Healthy()

	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if len(failing) > 0 {
		body["status"] = "unhealthy"
		body["failing"] = failing
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
