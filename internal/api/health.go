package api

import (
	"net/http"

	"github.com/finchat/finchat/internal/config"
)

// handleHealth probes both upstreams and reports per-dependency state. A
// degraded service still answers 200; load balancers that need a hard
// signal can inspect the status field.
func handleHealth(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conn := deps.Chat.Probe(r.Context())

	status := "healthy"
	if !conn.Healthy() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"service":   cfg.Service.Name,
		"generator": connectionState(conn.Generator),
		"warehouse": connectionState(conn.Warehouse),
	})
}

func connectionState(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}
