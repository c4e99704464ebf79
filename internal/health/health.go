// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jensholdgaard/player-auction/internal/clock"
)

// Status is the JSON body of a probe response.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Checker is a named readiness check.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Ping wraps a connection ping as a Checker.
func Ping(name string, ping func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: ping}
}

// Backlog fails once pending reports more than limit unsaved items. It is
// used for room snapshots that could not be persisted.
func Backlog(name string, pending func() int, limit int) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if n := pending(); n > limit {
				return fmt.Errorf("%d items pending, limit %d", n, limit)
			}
			return nil
		},
	}
}

// Handler provides HTTP health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	ready    bool
	checkers []Checker
	clock    clock.Clock
	timeout  time.Duration
}

// NewHandler creates a new health handler with the given checkers.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk, timeout: 5 * time.Second}
}

// SetReady marks the service as ready to receive traffic.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.LivenessHandler())
	mux.HandleFunc("GET /readyz", h.ReadinessHandler())
}

// LivenessHandler returns HTTP 200 while the process is alive.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status{Status: "ok", Timestamp: h.timestamp()})
	}
}

// ReadinessHandler returns HTTP 200 when the service is marked ready and
// every checker passes.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		h.mu.RUnlock()

		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, Status{Status: "not_ready", Timestamp: h.timestamp()})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		checks, failed := h.run(ctx)
		status, code := "ready", http.StatusOK
		if len(failed) > 0 {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, code, Status{Status: status, Checks: checks, Timestamp: h.timestamp()})
	}
}

// run executes every checker and returns each result plus the sorted names
// of those that failed.
func (h *Handler) run(ctx context.Context) (map[string]string, []string) {
	checks := make(map[string]string, len(h.checkers))
	var failed []string
	for _, c := range h.checkers {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = err.Error()
			failed = append(failed, c.Name)
			continue
		}
		checks[c.Name] = "ok"
	}
	sort.Strings(failed)
	return checks, failed
}

func (h *Handler) timestamp() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
