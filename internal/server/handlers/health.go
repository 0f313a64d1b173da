package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/3leaps/batchlog/internal/errors"
)

const checkTimeout = 2 * time.Second

// HealthChecker reports whether one dependency is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a successful health probe.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checks for the health endpoints.
type HealthManager struct {
	version string
	started time.Time

	mu       sync.RWMutex
	checkers map[string]HealthChecker
	ready    bool
}

// NewHealthManager creates a manager reporting version. It starts ready.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		started:  time.Now(),
		checkers: make(map[string]HealthChecker),
		ready:    true,
	}
}

// RegisterChecker adds or replaces the check called name.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// SetReady toggles the readiness probe, e.g. while the initial replay runs.
func (m *HealthManager) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *HealthManager) isReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checkers[name].CheckHealth(cctx)
		switch {
		case err == nil:
			results[name] = "healthy"
		case cctx.Err() == context.DeadlineExceeded:
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
		cancel()
	}
	return results
}

func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

func (m *HealthManager) respond(w http.ResponseWriter, r *http.Request, checks map[string]string) {
	status := m.determineOverallStatus(checks)
	if status == "unhealthy" {
		details := make(map[string]interface{}, len(checks))
		for k, v := range checks {
			details[k] = v
		}
		respondWithError(w, r, apperrors.NewServiceUnavailable("service unhealthy",
			map[string]interface{}{"checks": details}))
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		Checks:    checks,
	})
}

// HealthHandler runs every check.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, m.runChecks(r.Context()))
}

// LivenessHandler reports that the process is serving requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, nil)
}

// ReadinessHandler runs every check and fails while the manager is not
// ready.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !m.isReady() {
		respondWithError(w, r, apperrors.NewServiceUnavailable("not ready", nil))
		return
	}
	m.respond(w, r, m.runChecks(r.Context()))
}

// StartupHandler fails until startup work has finished.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if !m.isReady() {
		respondWithError(w, r, apperrors.NewServiceUnavailable("starting", nil))
		return
	}
	m.respond(w, r, nil)
}

var globalHealthManager *HealthManager

// InitHealthManager creates the process-wide manager.
func InitHealthManager(version string) *HealthManager {
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the process-wide manager, or nil.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withManager(fn func(m *HealthManager, w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := globalHealthManager
		if m == nil {
			respondWithError(w, r, apperrors.NewServiceUnavailable("health manager not initialized", nil))
			return
		}
		fn(m, w, r)
	}
}

// HealthHandler serves /health from the process-wide manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	withManager((*HealthManager).HealthHandler)(w, r)
}

// LivenessHandler serves /health/live from the process-wide manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	withManager((*HealthManager).LivenessHandler)(w, r)
}

// ReadinessHandler serves /health/ready from the process-wide manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	withManager((*HealthManager).ReadinessHandler)(w, r)
}

// StartupHandler serves /health/startup from the process-wide manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	withManager((*HealthManager).StartupHandler)(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
