package api

import (
	"net/http"

	"github.com/finchat/finchat/internal/config"
)

// handleInfo reports the non-secret runtime configuration.
func handleInfo(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":           cfg.Service.Name,
		"version":           version,
		"profile":           string(cfg.Profile),
		"model":             cfg.AI.Model,
		"warehouse_schema":  cfg.Warehouse.Schema,
		"max_result_rows":   cfg.Warehouse.MaxResultRows,
		"query_timeout":     cfg.Warehouse.QueryTimeout.String(),
		"max_history_turns": cfg.Chat.MaxHistoryTurns,
		"summarize_results": cfg.AI.SummarizeResults,
	})
}
