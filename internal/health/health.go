// Package health provides the HTTP liveness and readiness endpoints served
// next to the metrics listener during a practice run.
//
//   - /healthz: liveness probe; a process that can serve HTTP is alive.
//   - /readyz: readiness probe; returns 200 only when every registered
//     [Checker] passes. A run is ready when at least one transcription
//     backend is reachable and the capture device can be enumerated.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named probe.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and a non-nil error describing the failure otherwise.
type Checker struct {
	// Name is a short label for the probe (e.g. "asr", "capture"). It
	// appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Bool adapts a yes/no probe into a [Checker]. detail becomes the failure
// message when the probe reports false.
func Bool(name string, probe func() bool, detail string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !probe() {
				return errors.New(detail)
			}
			return nil
		},
	}
}

// report is the JSON response body for both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. It is safe for
// concurrent use; the probe list is fixed at construction time.
type Handler struct {
	checkers []Checker
	flight   singleflight.Group
}

// New creates a [Handler] that evaluates the given probes on each /readyz
// request, in the order provided.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz returns 200 only when every probe passes. Concurrent requests
// share a single probe round, so an aggressive scraper cannot stampede the
// transcription backends.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	v, _, _ := h.flight.Do("readyz", func() (any, error) {
		return h.probe(r.Context()), nil
	})
	rep := v.(report)

	status := http.StatusOK
	if rep.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// probe runs every checker once, each under its own timeout.
func (h *Handler) probe(ctx context.Context) report {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}

	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := c.Check(cctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
		} else {
			rep.Checks[c.Name] = "ok"
		}
	}
	return rep
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
