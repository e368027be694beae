package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// GuardState is the part of a guardrail the health endpoint reports on
type GuardState interface {
	InGrace() bool
	Elapsed() time.Duration
}

type HealthChecker struct {
	mu        sync.RWMutex
	guard     GuardState
	dryRun    bool
	lastError string
	lastErrAt time.Time
	now       func() time.Time
}

type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Phase       string    `json:"phase"`
	DryRun      bool      `json:"dry_run"`
	Uptime      string    `json:"uptime"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

func NewHealthChecker(guard GuardState, dryRun bool) *HealthChecker {
	return &HealthChecker{
		guard:  guard,
		dryRun: dryRun,
		now:    time.Now,
	}
}

// RecordError remembers the most recent failure; nil clears it
func (h *HealthChecker) RecordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.lastError = ""
		h.lastErrAt = time.Time{}
		return
	}
	h.lastError = err.Error()
	h.lastErrAt = h.now()
}

// Status builds the current health snapshot. A guardrail still in its grace
// window is "starting"; a recorded error makes the process "degraded".
func (h *HealthChecker) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:      "healthy",
		Timestamp:   h.now(),
		Phase:       "UNKNOWN",
		DryRun:      h.dryRun,
		LastError:   h.lastError,
		LastErrorAt: h.lastErrAt,
	}
	if h.guard != nil {
		status.Phase = "NORMAL"
		if h.guard.InGrace() {
			status.Phase = "GRACE"
			status.Status = "starting"
		}
		status.Uptime = h.guard.Elapsed().Truncate(time.Second).String()
	}
	if h.lastError != "" {
		status.Status = "degraded"
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.Status()

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "degraded" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		http.Error(w, fmt.Sprintf("encode health: %v", err), http.StatusInternalServerError)
	}
}
