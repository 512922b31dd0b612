package gateway

import (
	"net/http"
	"time"

	"github.com/replypass/replypass/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"` // ok, degraded or down
	Providers []provider.HealthReport `json:"providers"`
}

// handleHealth reports provider health. Some unhealthy providers make the
// gateway degraded; none healthy makes it down and answers 503.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Providers: g.engine.Health()}
		healthy := 0
		for _, p := range resp.Providers {
			if p.State == "healthy" {
				healthy++
			}
		}
		code := http.StatusOK
		switch {
		case len(resp.Providers) > 0 && healthy == 0:
			resp.Status, code = "down", http.StatusServiceUnavailable
		case healthy < len(resp.Providers):
			resp.Status = "degraded"
		}
		writeJSON(w, code, resp)
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime    int64                   `json:"uptime_seconds"`
	Providers []provider.HealthReport `json:"providers"`
	Limiters  int                     `json:"rate_limited_keys"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			Uptime:    int64(time.Since(g.startedAt).Seconds()),
			Providers: g.engine.Health(),
			Limiters:  g.PruneLimiters(),
		})
	}
}
