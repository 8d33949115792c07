package querycache

import (
	"strings"
	"testing"
	"time"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

func sampleResult() tabular.Result {
	return tabular.Result{
		Columns:  []string{"region", "revenue"},
		Rows:     []map[string]any{{"region": "west", "revenue": 1200.5}},
		RowCount: 1,
		Dialect:  tabular.DialectTabular,
	}
}

func TestGetWithinTTLReturnsValue(t *testing.T) {
	current := time.Unix(0, 0)
	cache := NewMemoryCacheWithClock(func() time.Time { return current })

	cache.Set("k1", sampleResult(), 10*time.Second)

	current = current.Add(10 * time.Second)
	got, ok := cache.Get("k1")
	if !ok {
		t.Fatal("Get() miss at exactly expiresAt, want hit")
	}
	if got.RowCount != 1 || got.Columns[0] != "region" {
		t.Fatalf("Get() = %+v", got)
	}
}

func TestGetAfterExpiryMissesAndDeletes(t *testing.T) {
	current := time.Unix(0, 0)
	cache := NewMemoryCacheWithClock(func() time.Time { return current })

	cache.Set("k1", sampleResult(), 10*time.Second)

	current = current.Add(11 * time.Second)
	if _, ok := cache.Get("k1"); ok {
		t.Fatal("Get() hit after expiry, want miss")
	}
	if stats := cache.Stats(); stats.Entries != 0 {
		t.Fatalf("Entries = %d, want 0 after lazy eviction", stats.Entries)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set("k1", sampleResult(), time.Minute)

	first, _ := cache.Get("k1")
	first.Rows[0]["region"] = "mutated"
	first.Columns[0] = "mutated"

	second, _ := cache.Get("k1")
	if second.Rows[0]["region"] != "west" || second.Columns[0] != "region" {
		t.Fatal("cached value was mutated through a returned copy")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	current := time.Unix(0, 0)
	cache := NewMemoryCacheWithClock(func() time.Time { return current })

	cache.Set("old", sampleResult(), 5*time.Second)
	cache.Set("fresh", sampleResult(), time.Hour)

	current = current.Add(time.Minute)
	if removed := cache.Sweep(); removed != 1 {
		t.Fatalf("Sweep() = %d, want 1", removed)
	}
	if _, ok := cache.Get("fresh"); !ok {
		t.Fatal("fresh entry should survive the sweep")
	}
}

func TestStatsCountsHitsAndMisses(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set("k1", sampleResult(), time.Minute)

	cache.Get("k1")
	cache.Get("absent")

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("Stats() = %+v", stats)
	}
}

func TestFingerprintSeparatesConnections(t *testing.T) {
	base := tabular.Query{
		Text:        "SELECT count(*) FROM orders",
		Dialect:     tabular.DialectRelational,
		WorkspaceID: "ws-1",
	}
	a := base
	a.ConnectionID = "conn-a"
	b := base
	b.ConnectionID = "conn-b"

	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("fingerprints for different connections must not collide")
	}
}

func TestFingerprintIsStable(t *testing.T) {
	q := tabular.Query{Text: "evaluate sales", Dialect: tabular.DialectTabular, DatasetID: "ds-1"}
	first := Fingerprint(q)
	second := Fingerprint(q)
	if first != second {
		t.Fatalf("Fingerprint not deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "tabular|ds-1|") {
		t.Fatalf("Fingerprint = %q, want dialect and dataset prefix", first)
	}
}
