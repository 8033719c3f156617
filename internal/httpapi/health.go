package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Prober checks one dependency's reachability.
type Prober func(ctx context.Context) error

// HealthChecker runs every registered Prober and reports per-dependency
// state without ever failing the call itself, per spec.md §7's
// "/health reports per-dependency state without failing the call."
type HealthChecker struct {
	probes  map[string]Prober
	timeout time.Duration
}

// NewHealthChecker builds an empty HealthChecker; register dependencies
// with Register.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	return &HealthChecker{probes: map[string]Prober{}, timeout: timeout}
}

func (h *HealthChecker) Register(name string, p Prober) {
	h.probes[name] = p
}

type depStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *HealthChecker) run(ctx context.Context) map[string]depStatus {
	out := map[string]depStatus{}
	for name, probe := range h.probes {
		probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
		if err := probe(probeCtx); err != nil {
			out[name] = depStatus{OK: false, Error: err.Error()}
		} else {
			out[name] = depStatus{OK: true}
		}
		cancel()
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	deps := s.Health.run(c.Request.Context())
	status := "ok"
	for _, d := range deps {
		if !d.OK {
			status = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "dependencies": deps})
}
