// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"encoding/json"
	"net/http"
)

// CheckHealth handles GET /health. Reports Postgres, Redis and the signing mode.
// Returns 503 if a configured dependency is down; an unconfigured one is "disabled".
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	postgresStatus := h.dependencyStatus(r, "postgres", h.PS)
	redisStatus := h.dependencyStatus(r, "redis", h.RS)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if redisStatus == "error" || postgresStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Postgres string `json:"postgres"`
		Redis    string `json:"redis"`
		Signing  string `json:"signing"`
	}{postgresStatus, redisStatus, h.Verifier.Mode().String()})
}

func (h *AuthHandler) dependencyStatus(r *http.Request, name string, hc HealthChecker) string {
	if hc == nil {
		return "disabled"
	}
	if err := hc.CheckHealth(r.Context()); err != nil {
		logError(r, name+" health check failed", "error", err)
		return "error"
	}
	return "ok"
}
