package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rizardo-maker/aiva-server-sub000/internal/config"
	"github.com/rizardo-maker/aiva-server-sub000/internal/insight"
	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

func newTestHandler(t *testing.T, service InsightService) http.Handler {
	t.Helper()
	cfg, err := config.Load("aiva-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, Dependencies{Insights: service})
}

func TestInsightEndpoint(t *testing.T) {
	service := &stubInsightService{
		response: insight.Response{
			ID:         "req-1",
			Answer:     "Revenue grew 12% quarter over quarter.",
			Dialect:    tabular.DialectTabular,
			Confidence: 0.6,
			TokensUsed: 42,
		},
	}
	h := newTestHandler(t, service)

	body := `{"question":"How did revenue trend?","dataset_id":"sales","include_visualization":true}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/insight", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["id"] != "req-1" {
		t.Fatalf("id = %v", payload["id"])
	}
	if payload["confidence"] != 0.6 {
		t.Fatalf("confidence = %v", payload["confidence"])
	}
	if service.lastReq.DatasetID != "sales" || !service.lastReq.IncludeVisualization {
		t.Fatalf("request not forwarded: %+v", service.lastReq)
	}
}

func TestInsightEndpointRejectsEmptyQuestion(t *testing.T) {
	h := newTestHandler(t, &stubInsightService{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/insight", strings.NewReader(`{"question":"  "}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "QUESTION_REQUIRED") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestInsightEndpointRejectsUnknownDialect(t *testing.T) {
	h := newTestHandler(t, &stubInsightService{})

	body := `{"question":"anything","dialect":"graphql"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/insight", strings.NewReader(body)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "DIALECT_INVALID") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestInsightEndpointMapsServiceUnavailable(t *testing.T) {
	service := &stubInsightService{processErr: insight.ErrServiceUnavailable}
	h := newTestHandler(t, service)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/insight", strings.NewReader(`{"question":"q"}`)))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQueryRunEndpoint(t *testing.T) {
	service := &stubInsightService{
		result: insight.ClassifiedResult{
			Data:    tabular.Result{Columns: []string{"n"}, RowCount: 0},
			Query:   "SELECT 1",
			Dialect: tabular.DialectRelational,
		},
	}
	h := newTestHandler(t, service)

	body := `{"question":"select 1 from table dual"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/run", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"SELECT 1"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestQueryRunEndpointMapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "execution error",
			err:        &tabular.ExecutionError{Status: http.StatusBadRequest, Body: "bad query"},
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_QUERY_FAILED",
		},
		{
			name:       "transient error",
			err:        &tabular.TransientError{Err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
		{
			name:       "other error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "QUERY_EXECUTION_FAILED",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubInsightService{executeErr: tc.err})

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/run", strings.NewReader(`{"question":"q"}`)))

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if !strings.Contains(rr.Body.String(), tc.wantCode) {
				t.Fatalf("body = %s", rr.Body.String())
			}
		})
	}
}

func TestDatasetSchemaEndpoint(t *testing.T) {
	service := &stubInsightService{
		schema: tabular.Schema{
			DatasetID: "sales",
			Tables: []tabular.TableSchema{
				{Name: "orders", Columns: []tabular.Column{{Name: "id", DataType: "int64"}}},
			},
		},
	}
	h := newTestHandler(t, service)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/datasets/sales/schema", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"orders"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}
