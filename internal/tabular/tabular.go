package tabular

import (
	"context"
	"time"
)

// Dialect selects which query language a question is answered with.
type Dialect string

const (
	// DialectTabular is the tabular-expression language of the analytics
	// service, scoped to a dataset inside a workspace.
	DialectTabular Dialect = "tabular"
	// DialectRelational is plain SQL, scoped to a workspace connection.
	DialectRelational Dialect = "relational"
)

func (d Dialect) Valid() bool {
	return d == DialectTabular || d == DialectRelational
}

// Query is the ephemeral unit of execution. It is never persisted.
type Query struct {
	Text         string
	Dialect      Dialect
	DatasetID    string
	WorkspaceID  string
	ConnectionID string
}

// Result is the normalized shape every execution path produces, regardless
// of how the upstream service nests its rows.
type Result struct {
	Columns       []string
	Rows          []map[string]any
	RowCount      int
	ExecutionTime time.Duration
	Dialect       Dialect
	Cached        bool
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r Result) Clone() Result {
	out := r
	out.Columns = append([]string(nil), r.Columns...)
	out.Rows = make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		copied := make(map[string]any, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out.Rows[i] = copied
	}
	return out
}

type Dataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id"`
}

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Schema struct {
	DatasetID string        `json:"dataset_id"`
	Tables    []TableSchema `json:"tables"`
}

type Runner interface {
	Execute(ctx context.Context, query Query) (Result, error)
}
