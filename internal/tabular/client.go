package tabular

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ExecutionError is a non-success response from the analytics service.
type ExecutionError struct {
	Status int
	Body   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed status=%d body=%s", e.Status, e.Body)
}

// TransientError marks a network-level failure (connect, reset, timeout).
// The executor does not retry these; callers may.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient query transport failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

type ClientConfig struct {
	BaseURL string
}

// Client speaks to the external tabular analytics service. The underlying
// http.Client carries no timeout; query calls can legitimately run long and
// the missing bound is a known gap of this design.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  &http.Client{},
	}, nil
}

type tabularQueryPayload struct {
	Expression string `json:"expression"`
	RowLimit   int    `json:"row_limit"`
}

type relationalQueryPayload struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

// tabularQueryResponse nests results per table with positional rows.
type tabularQueryResponse struct {
	Results []struct {
		Tables []struct {
			Columns []struct {
				Name string `json:"name"`
			} `json:"columns"`
			Rows [][]any `json:"rows"`
		} `json:"tables"`
	} `json:"results"`
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// relationalQueryResponse is flat: named columns plus map rows.
type relationalQueryResponse struct {
	Columns         []string         `json:"columns"`
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"row_count"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// ExecuteQuery issues the dialect-appropriate endpoint call and normalizes
// the response into a Result.
func (c *Client) ExecuteQuery(ctx context.Context, token string, query Query, rowLimit int) (Result, error) {
	switch query.Dialect {
	case DialectTabular:
		return c.executeTabular(ctx, token, query, rowLimit)
	case DialectRelational:
		return c.executeRelational(ctx, token, query, rowLimit)
	default:
		return Result{}, fmt.Errorf("unsupported dialect %q", query.Dialect)
	}
}

func (c *Client) executeTabular(ctx context.Context, token string, query Query, rowLimit int) (Result, error) {
	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/datasets/%s/query",
		c.baseURL, url.PathEscape(query.WorkspaceID), url.PathEscape(query.DatasetID))

	raw, err := c.post(ctx, token, endpoint, tabularQueryPayload{Expression: query.Text, RowLimit: rowLimit})
	if err != nil {
		return Result{}, err
	}

	var parsed tabularQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode tabular response: %w", err)
	}
	if len(parsed.Results) == 0 || len(parsed.Results[0].Tables) == 0 {
		return Result{
			Dialect:       DialectTabular,
			ExecutionTime: time.Duration(parsed.ExecutionTimeMs) * time.Millisecond,
		}, nil
	}

	table := parsed.Results[0].Tables[0]
	columns := make([]string, len(table.Columns))
	for i, column := range table.Columns {
		columns[i] = column.Name
	}
	rows := make([]map[string]any, 0, len(table.Rows))
	for _, positional := range table.Rows {
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			if i < len(positional) {
				row[column] = positional[i]
			} else {
				row[column] = nil
			}
		}
		rows = append(rows, row)
	}

	return Result{
		Columns:       columns,
		Rows:          rows,
		RowCount:      len(rows),
		ExecutionTime: time.Duration(parsed.ExecutionTimeMs) * time.Millisecond,
		Dialect:       DialectTabular,
	}, nil
}

func (c *Client) executeRelational(ctx context.Context, token string, query Query, rowLimit int) (Result, error) {
	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/connections/%s/sql",
		c.baseURL, url.PathEscape(query.WorkspaceID), url.PathEscape(query.ConnectionID))

	raw, err := c.post(ctx, token, endpoint, relationalQueryPayload{SQL: query.Text, RowLimit: rowLimit})
	if err != nil {
		return Result{}, err
	}

	var parsed relationalQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode relational response: %w", err)
	}
	if parsed.Rows == nil {
		parsed.Rows = []map[string]any{}
	}

	return Result{
		Columns:       parsed.Columns,
		Rows:          parsed.Rows,
		RowCount:      len(parsed.Rows),
		ExecutionTime: time.Duration(parsed.ExecutionTimeMs) * time.Millisecond,
		Dialect:       DialectRelational,
	}, nil
}

func (c *Client) ListDatasets(ctx context.Context, token, workspaceID string) ([]Dataset, error) {
	endpoint := c.baseURL + "/v1/datasets"
	if strings.TrimSpace(workspaceID) != "" {
		endpoint += "?workspace_id=" + url.QueryEscape(workspaceID)
	}

	raw, err := c.get(ctx, token, endpoint)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Datasets []Dataset `json:"datasets"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode dataset list: %w", err)
	}
	return parsed.Datasets, nil
}

func (c *Client) GetSchema(ctx context.Context, token, datasetID, workspaceID string) (Schema, error) {
	endpoint := c.baseURL + "/v1/datasets/" + url.PathEscape(datasetID) + "/schema"
	if strings.TrimSpace(workspaceID) != "" {
		endpoint += "?workspace_id=" + url.QueryEscape(workspaceID)
	}

	raw, err := c.get(ctx, token, endpoint)
	if err != nil {
		return Schema{}, err
	}
	var parsed Schema
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	if parsed.DatasetID == "" {
		parsed.DatasetID = datasetID
	}
	return parsed, nil
}

func (c *Client) post(ctx context.Context, token, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token)
}

func (c *Client) get(ctx context.Context, token, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req, token)
}

func (c *Client) do(req *http.Request, token string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, &ExecutionError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
