// Package health provides the HTTP liveness and readiness handlers.
//
//   - /healthz reports that the process serves HTTP; it always returns 200.
//   - /readyz runs every registered [Checker] concurrently. It returns 503
//     when a critical check fails. Failing optional checks mark the service
//     "degraded" but keep it ready, so meetings can still be browsed while,
//     for example, no transcription model is loaded.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Status values reported in the "status" field.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error

	// Optional checks degrade the service instead of failing readiness.
	Optional bool
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string  `json:"status"`
	Error    string  `json:"error,omitempty"`
	Optional bool    `json:"optional,omitempty"`
	Millis   float64 `json:"duration_ms"`
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on every readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz runs the checks and reports 200 unless a critical one failed.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	status := http.StatusOK
	if rep.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Evaluate runs every check concurrently, each under its own [checkTimeout].
func (h *Handler) Evaluate(ctx context.Context) Report {
	rep := Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(h.checkers))}
	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			res := CheckResult{
				Status:   StatusOK,
				Optional: c.Optional,
				Millis:   float64(time.Since(start).Microseconds()) / 1000,
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Status, res.Error = StatusFail, err.Error()
				switch {
				case !c.Optional:
					rep.Status = StatusFail
				case rep.Status == StatusOK:
					rep.Status = StatusDegraded
				}
			}
			rep.Checks[c.Name] = res
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
