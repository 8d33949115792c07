package api

import (
	"net/http"
	"strings"
)

func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Insights == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INSIGHT_NOT_CONFIGURED", "insight dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "insight_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	workspaceID := strings.TrimSpace(r.URL.Query().Get("workspace_id"))
	datasets, err := deps.Insights.ListAvailableDatasets(r.Context(), workspaceID)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workspace_id": workspaceID,
		"datasets":     datasets,
	})
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Insights == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INSIGHT_NOT_CONFIGURED", "insight dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "insight_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	datasetID := strings.TrimSpace(r.PathValue("dataset"))
	if datasetID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_REQUIRED", "dataset id is required", false, nil)
		return
	}
	workspaceID := strings.TrimSpace(r.URL.Query().Get("workspace_id"))

	schema, err := deps.Insights.GetDatasetSchema(r.Context(), datasetID, workspaceID)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, schema)
}
