package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

type Config struct {
	Connections     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Runner executes relational-dialect queries directly against registered
// workspace connections instead of routing them through the analytics
// service. Connections it does not know about stay on the HTTP path.
type Runner struct {
	pools map[string]*sql.DB
}

func NewRunner(cfg Config) (*Runner, error) {
	dsns, err := ParseConnections(cfg.Connections)
	if err != nil {
		return nil, err
	}

	pools := make(map[string]*sql.DB, len(dsns))
	for connectionID, dsn := range dsns {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open connection %q: %w", connectionID, err)
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		pools[connectionID] = db
	}
	return &Runner{pools: pools}, nil
}

// NewRunnerFromPools wires pre-built pools, used by tests.
func NewRunnerFromPools(pools map[string]*sql.DB) *Runner {
	if pools == nil {
		pools = map[string]*sql.DB{}
	}
	return &Runner{pools: pools}
}

// ParseConnections splits a "conn-id=dsn;conn-id=dsn" spec.
func ParseConnections(spec string) (map[string]string, error) {
	dsns := map[string]string{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return dsns, nil
	}
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, dsn, found := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		dsn = strings.TrimSpace(dsn)
		if !found || id == "" || dsn == "" {
			return nil, fmt.Errorf("invalid connection entry %q: expected conn-id=dsn", entry)
		}
		dsns[id] = dsn
	}
	return dsns, nil
}

func (r *Runner) Has(connectionID string) bool {
	_, ok := r.pools[connectionID]
	return ok
}

func (r *Runner) Execute(ctx context.Context, query tabular.Query, rowLimit int) (tabular.Result, error) {
	db, ok := r.pools[query.ConnectionID]
	if !ok {
		return tabular.Result{}, fmt.Errorf("unknown connection %q", query.ConnectionID)
	}
	if !isReadOnlySQL(query.Text) {
		return tabular.Result{}, fmt.Errorf("only read-only SELECT/WITH queries are allowed")
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, query.Text)
	if err != nil {
		return tabular.Result{}, fmt.Errorf("execute relational query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return tabular.Result{}, fmt.Errorf("read result columns: %w", err)
	}

	var collected []map[string]any
	for rows.Next() {
		if rowLimit > 0 && len(collected) >= rowLimit {
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return tabular.Result{}, fmt.Errorf("scan result row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return tabular.Result{}, fmt.Errorf("iterate result rows: %w", err)
	}

	return tabular.Result{
		Columns:       columns,
		Rows:          collected,
		RowCount:      len(collected),
		ExecutionTime: time.Since(start),
		Dialect:       tabular.DialectRelational,
	}, nil
}

func (r *Runner) Close() error {
	var firstErr error
	for _, db := range r.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func isReadOnlySQL(queryText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(queryText))
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func normalizeValue(value any) any {
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}
	return value
}
