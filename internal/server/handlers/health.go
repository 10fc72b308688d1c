package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/tgfiles/tgfiles/internal/errors"
	"github.com/tgfiles/tgfiles/internal/metrics"
)

// Per-check states.
const (
	CheckHealthy   = "healthy"
	CheckDegraded  = "degraded"
	CheckUnhealthy = "unhealthy"
	CheckTimeout   = "timeout"
)

// ErrDegraded marks a check that failed without making the service unusable.
var ErrDegraded = stderrors.New("degraded")

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

type probe struct {
	name    string
	timeout time.Duration
	// skipChecks answers from the process alone. Liveness must not fail
	// because Redis or the Bot API is down; a restart fixes neither.
	skipChecks bool
}

var (
	aggregateProbe = probe{name: "aggregate", timeout: 5 * time.Second}
	liveProbe      = probe{name: "live", timeout: 2 * time.Second, skipChecks: true}
	readyProbe     = probe{name: "ready", timeout: 5 * time.Second}
	startupProbe   = probe{name: "startup", timeout: 3 * time.Second}
)

// HealthManager runs registered checks for the health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker registers a health checker under name, replacing any
// earlier checker with the same name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// runHealthChecks runs every checker concurrently. A checker still running
// when ctx ends is reported as timeout.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(checkers))
		group  errgroup.Group
	)
	for name, checker := range checkers {
		group.Go(func() error {
			started := time.Now()
			status := runCheck(ctx, checker)
			metrics.RecordHealthCheck(name, status == CheckHealthy, time.Since(started))

			mu.Lock()
			checks[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return checks
}

func runCheck(ctx context.Context, checker HealthChecker) string {
	done := make(chan error, 1)
	go func() { done <- checker.CheckHealth(ctx) }()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return CheckHealthy
		case stderrors.Is(err, ErrDegraded):
			return CheckDegraded
		default:
			return CheckUnhealthy
		}
	case <-ctx.Done():
		return CheckTimeout
	}
}

// determineOverallStatus folds per-check states into one status. Timeouts
// count as degraded.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := CheckHealthy
	for _, check := range checks {
		switch check {
		case CheckUnhealthy:
			return CheckUnhealthy
		case CheckDegraded, CheckTimeout:
			status = CheckDegraded
		}
	}
	return status
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, p probe) {
	var checks map[string]string
	status := CheckHealthy

	if !p.skipChecks {
		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		checks = hm.runHealthChecks(ctx)
		cancel()
		status = hm.determineOverallStatus(checks)
	}

	if status == CheckUnhealthy {
		envelope := apperrors.NewServiceUnavailableError(p.name + " health check failed")
		apperrors.RespondWithError(w, r, enrichHealthEnvelope(envelope, p.name, status, checks))
		return
	}

	var body any = ProbeResponse{Status: status, Timestamp: time.Now().UTC()}
	if p == aggregateProbe {
		body = HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler reports every check with the build version.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, aggregateProbe)
}

// LivenessHandler reports that the process is serving requests.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, liveProbe)
}

// ReadinessHandler fails while a required dependency is unhealthy.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, readyProbe)
}

// StartupHandler fails until the dependencies checked at boot respond.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, startupProbe)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
		"probe":  probe,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{
		"status": status,
		"probe":  probe,
	}

	var failing []string
	for name, result := range checks {
		if result != CheckHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func globalProbe(p probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager != nil {
			globalHealthManager.serveProbe(w, r, p)
			return
		}

		envelope := apperrors.NewServiceUnavailableError("health manager not initialized")
		apperrors.RespondWithError(w, r, enrichHealthEnvelope(envelope, p.name, "unknown", nil))
	}
}

// Route handlers backed by the global manager.
var (
	HealthHandler    = globalProbe(aggregateProbe)
	LivenessHandler  = globalProbe(liveProbe)
	ReadinessHandler = globalProbe(readyProbe)
	StartupHandler   = globalProbe(startupProbe)
)
