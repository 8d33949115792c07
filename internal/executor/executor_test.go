package executor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rizardo-maker/aiva-server-sub000/internal/querycache"
	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

type staticTokens struct {
	token string
	err   error
	calls int32
}

func (s *staticTokens) AccessToken(context.Context, string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

type fakeDirect struct {
	known  map[string]bool
	result tabular.Result
	err    error
	calls  int
}

func (f *fakeDirect) Has(connectionID string) bool { return f.known[connectionID] }

func (f *fakeDirect) Execute(_ context.Context, _ tabular.Query, _ int) (tabular.Result, error) {
	f.calls++
	if f.err != nil {
		return tabular.Result{}, f.err
	}
	return f.result, nil
}

func newAnalyticsServer(t *testing.T, hits *int32) *tabular.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(hits, 1)
		_, _ = w.Write([]byte(`{
			"results": [{"tables": [{
				"columns": [{"name": "total"}],
				"rows": [[42]]
			}]}],
			"execution_time_ms": 5
		}`))
	}))
	t.Cleanup(server.Close)

	client, err := tabular.NewClient(tabular.ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestExecuteCachesSecondCall(t *testing.T) {
	var hits int32
	client := newAnalyticsServer(t, &hits)
	cache := querycache.NewMemoryCache()
	exec := New(client, &staticTokens{token: "tok"}, cache, nil, Config{Scope: "s", RowLimit: 100})

	query := tabular.Query{Text: "total sales", Dialect: tabular.DialectTabular, DatasetID: "ds", WorkspaceID: "ws"}

	first, err := exec.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if first.Cached {
		t.Fatal("first execution should not be cached")
	}

	second, err := exec.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if !second.Cached {
		t.Fatal("second execution should be served from cache")
	}
	if second.RowCount != 1 || second.Rows[0]["total"] != float64(42) {
		t.Fatalf("cached result = %+v", second)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("upstream hits = %d, want 1", hits)
	}
}

func TestExecuteExpiredEntryRefetches(t *testing.T) {
	var hits int32
	client := newAnalyticsServer(t, &hits)

	current := time.Unix(0, 0)
	cache := querycache.NewMemoryCacheWithClock(func() time.Time { return current })
	exec := New(client, &staticTokens{token: "tok"}, cache, nil, Config{CacheTTL: 300 * time.Second, RowLimit: 10})

	query := tabular.Query{Text: "total", Dialect: tabular.DialectTabular, DatasetID: "ds", WorkspaceID: "ws"}
	if _, err := exec.Execute(context.Background(), query); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	current = current.Add(301 * time.Second)
	result, err := exec.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute() after expiry error = %v", err)
	}
	if result.Cached {
		t.Fatal("expired entry must not be served as a hit")
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("upstream hits = %d, want 2", hits)
	}
}

func TestExecuteTokenFailureIsFatal(t *testing.T) {
	var hits int32
	client := newAnalyticsServer(t, &hits)
	tokenErr := errors.New("credential chain unavailable")
	exec := New(client, &staticTokens{err: tokenErr}, querycache.NewMemoryCache(), nil, Config{})

	_, err := exec.Execute(context.Background(), tabular.Query{
		Text: "total", Dialect: tabular.DialectTabular, DatasetID: "ds", WorkspaceID: "ws",
	})
	if !errors.Is(err, tokenErr) {
		t.Fatalf("error = %v, want token failure", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("no upstream call should happen without a token")
	}
}

func TestExecutePrefersDirectRelationalConnection(t *testing.T) {
	var hits int32
	client := newAnalyticsServer(t, &hits)
	tokens := &staticTokens{token: "tok"}
	direct := &fakeDirect{
		known: map[string]bool{"conn-1": true},
		result: tabular.Result{
			Columns:  []string{"n"},
			Rows:     []map[string]any{{"n": int64(1)}},
			RowCount: 1,
			Dialect:  tabular.DialectRelational,
		},
	}
	exec := New(client, tokens, querycache.NewMemoryCache(), nil, Config{}).WithDirectRunner(direct)

	result, err := exec.Execute(context.Background(), tabular.Query{
		Text: "SELECT 1 AS n", Dialect: tabular.DialectRelational, WorkspaceID: "ws", ConnectionID: "conn-1",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if direct.calls != 1 {
		t.Fatalf("direct runner calls = %d", direct.calls)
	}
	if atomic.LoadInt32(&hits) != 0 || atomic.LoadInt32(&tokens.calls) != 0 {
		t.Fatal("direct path must skip the analytics service and token acquisition")
	}
	if result.RowCount != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestExecuteUnknownConnectionFallsBackToService(t *testing.T) {
	var hits int32
	client := newAnalyticsServer(t, &hits)
	direct := &fakeDirect{known: map[string]bool{}}
	exec := New(client, &staticTokens{token: "tok"}, querycache.NewMemoryCache(), nil, Config{}).WithDirectRunner(direct)

	_, err := exec.Execute(context.Background(), tabular.Query{
		Text: "SELECT 1", Dialect: tabular.DialectRelational, WorkspaceID: "ws", ConnectionID: "conn-x",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if direct.calls != 0 {
		t.Fatal("unregistered connection must not use the direct runner")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("upstream hits = %d, want 1", hits)
	}
}

func TestExecuteRejectsUnknownDialect(t *testing.T) {
	exec := New(nil, &staticTokens{token: "tok"}, nil, nil, Config{})
	_, err := exec.Execute(context.Background(), tabular.Query{Text: "x", Dialect: "graph"})
	if err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}
