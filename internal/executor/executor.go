package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rizardo-maker/aiva-server-sub000/internal/credentials"
	"github.com/rizardo-maker/aiva-server-sub000/internal/observability"
	"github.com/rizardo-maker/aiva-server-sub000/internal/querycache"
	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

type Config struct {
	Scope    string
	RowLimit int
	CacheTTL time.Duration
}

// Executor runs classified queries against the analytics service, consulting
// the cache first and a direct relational connection when one is registered.
type Executor struct {
	client *tabular.Client
	tokens credentials.TokenProvider
	cache  querycache.Cache
	direct DirectRunner
	logger *slog.Logger

	scope    string
	rowLimit int
	cacheTTL time.Duration
}

// DirectRunner executes relational queries on a registered connection.
type DirectRunner interface {
	Has(connectionID string) bool
	Execute(ctx context.Context, query tabular.Query, rowLimit int) (tabular.Result, error)
}

func New(client *tabular.Client, tokens credentials.TokenProvider, cache querycache.Cache, logger *slog.Logger, cfg Config) *Executor {
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = 500
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = querycache.DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		client:   client,
		tokens:   tokens,
		cache:    cache,
		logger:   logger,
		scope:    cfg.Scope,
		rowLimit: cfg.RowLimit,
		cacheTTL: cfg.CacheTTL,
	}
}

// WithDirectRunner registers the direct relational path.
func (e *Executor) WithDirectRunner(runner DirectRunner) *Executor {
	e.direct = runner
	return e
}

func (e *Executor) Execute(ctx context.Context, query tabular.Query) (tabular.Result, error) {
	if !query.Dialect.Valid() {
		return tabular.Result{}, fmt.Errorf("unsupported dialect %q", query.Dialect)
	}

	key := querycache.Fingerprint(query)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			cached.Cached = true
			return cached, nil
		}
	}

	start := time.Now()
	result, err := e.executeFresh(ctx, query)
	observability.ObserveQueryExecution(string(query.Dialect), err, time.Since(start))
	if err != nil {
		return tabular.Result{}, err
	}

	result.Dialect = query.Dialect
	result.Cached = false
	if e.cache != nil {
		e.cache.Set(key, result, e.cacheTTL)
	}
	e.logger.DebugContext(ctx, "query executed",
		slog.String("dialect", string(query.Dialect)),
		slog.Int("rows", result.RowCount),
		slog.String("duration", result.ExecutionTime.String()),
	)
	return result, nil
}

func (e *Executor) executeFresh(ctx context.Context, query tabular.Query) (tabular.Result, error) {
	if query.Dialect == tabular.DialectRelational && e.direct != nil && e.direct.Has(query.ConnectionID) {
		return e.direct.Execute(ctx, query, e.rowLimit)
	}

	token, err := e.tokens.AccessToken(ctx, e.scope)
	if err != nil {
		return tabular.Result{}, err
	}
	return e.client.ExecuteQuery(ctx, token, query, e.rowLimit)
}

// ListDatasets enumerates datasets visible to the service principal.
func (e *Executor) ListDatasets(ctx context.Context, workspaceID string) ([]tabular.Dataset, error) {
	token, err := e.tokens.AccessToken(ctx, e.scope)
	if err != nil {
		return nil, err
	}
	return e.client.ListDatasets(ctx, token, workspaceID)
}

// GetSchema fetches table and column metadata for a dataset.
func (e *Executor) GetSchema(ctx context.Context, datasetID, workspaceID string) (tabular.Schema, error) {
	token, err := e.tokens.AccessToken(ctx, e.scope)
	if err != nil {
		return tabular.Schema{}, err
	}
	return e.client.GetSchema(ctx, token, datasetID, workspaceID)
}
