package api

import (
	"net/http"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	schema, err := deps.Schema.Schema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}
