package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rizardo-maker/aiva-server-sub000/internal/auth"
	"github.com/rizardo-maker/aiva-server-sub000/internal/credentials"
	"github.com/rizardo-maker/aiva-server-sub000/internal/insight"
	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

type insightRequest struct {
	Question             string `json:"question"`
	DatasetID            string `json:"dataset_id"`
	ConnectionID         string `json:"connection_id"`
	WorkspaceID          string `json:"workspace_id"`
	Dialect              string `json:"dialect"`
	IncludeVisualization bool   `json:"include_visualization"`
}

func handleInsight(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Insights == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INSIGHT_NOT_CONFIGURED", "insight dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "insight_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request insightRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid insight request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	dialect := tabular.Dialect(strings.TrimSpace(request.Dialect))
	if dialect != "" && !dialect.Valid() {
		writeError(r.Context(), w, http.StatusBadRequest, "DIALECT_INVALID", "dialect must be tabular or relational", false, map[string]any{"dialect": request.Dialect})
		return
	}

	response, err := deps.Insights.ProcessDataQuestion(r.Context(), insight.Request{
		Question:             request.Question,
		RequesterID:          requesterFromRequest(r),
		DatasetID:            request.DatasetID,
		ConnectionID:         request.ConnectionID,
		WorkspaceID:          request.WorkspaceID,
		DialectOverride:      dialect,
		IncludeVisualization: request.IncludeVisualization,
	})
	if err != nil {
		if errors.Is(err, insight.ErrServiceUnavailable) {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "insight generation is unavailable", true, map[string]any{"details": err.Error()})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INSIGHT_FAILED", "insight generation failed", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":                response.ID,
		"answer":            response.Answer,
		"data":              response.Data,
		"query":             response.Query,
		"dialect":           response.Dialect,
		"visualization":     response.Visualization,
		"confidence":        response.Confidence,
		"execution_time_ms": response.ExecutionTime.Milliseconds(),
		"tokens_used":       response.TokensUsed,
	})
}

type queryRunRequest struct {
	Question     string `json:"question"`
	DatasetID    string `json:"dataset_id"`
	ConnectionID string `json:"connection_id"`
	WorkspaceID  string `json:"workspace_id"`
	Dialect      string `json:"dialect"`
}

func handleQueryRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Insights == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INSIGHT_NOT_CONFIGURED", "insight dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "insight_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRunRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	dialect := tabular.Dialect(strings.TrimSpace(request.Dialect))
	if dialect != "" && !dialect.Valid() {
		writeError(r.Context(), w, http.StatusBadRequest, "DIALECT_INVALID", "dialect must be tabular or relational", false, map[string]any{"dialect": request.Dialect})
		return
	}

	result, err := deps.Insights.ClassifyAndExecute(r.Context(), request.Question, insight.ExecuteOptions{
		DatasetID:       request.DatasetID,
		WorkspaceID:     request.WorkspaceID,
		ConnectionID:    request.ConnectionID,
		DialectOverride: dialect,
	})
	if err != nil {
		writeQueryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var execErr *tabular.ExecutionError
	if errors.As(err, &execErr) {
		writeError(r.Context(), w, http.StatusBadGateway, "UPSTREAM_QUERY_FAILED", "upstream query execution failed", false, map[string]any{
			"upstream_status": execErr.Status,
			"details":         execErr.Body,
		})
		return
	}
	var transientErr *tabular.TransientError
	if errors.As(err, &transientErr) {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "upstream service is unavailable", true, map[string]any{"details": err.Error()})
		return
	}
	var authErr *credentials.AuthError
	if errors.As(err, &authErr) {
		writeError(r.Context(), w, http.StatusBadGateway, "UPSTREAM_AUTH_FAILED", "failed to acquire an access token", true, map[string]any{"details": err.Error()})
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", "query execution failed", true, map[string]any{"details": err.Error()})
}

func requesterFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.RequesterID) != "" {
			return identity.RequesterID
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Requester-ID"))
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
