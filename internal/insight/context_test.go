package insight

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

func TestBuildContextEmptyResult(t *testing.T) {
	result := tabular.Result{Columns: []string{"revenue"}, RowCount: 0}

	got := BuildContext(result, "What was revenue last month?")
	want := `The query for "What was revenue last month?" returned no rows. There is no data to summarize.`
	if got != want {
		t.Fatalf("empty-result context = %q, want %q", got, want)
	}
}

func TestBuildContextFormatsRows(t *testing.T) {
	result := tabular.Result{
		Columns: []string{"region", "revenue", "note"},
		Rows: []map[string]any{
			{"region": "EMEA", "revenue": float64(1234567.5), "note": nil},
			{"region": "APAC", "revenue": int64(980), "note": strings.Repeat("x", 60)},
		},
		RowCount: 2,
	}

	got := BuildContext(result, "revenue by region")
	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), got)
	}
	if lines[0] != "region\trevenue\tnote" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "---\t---\t---" {
		t.Fatalf("separator = %q", lines[1])
	}
	if lines[2] != "EMEA\t1,234,567.5\tNULL" {
		t.Fatalf("first row = %q", lines[2])
	}
	wantNote := strings.Repeat("x", 50) + "..."
	if lines[3] != "APAC\t980\t"+wantNote {
		t.Fatalf("second row = %q", lines[3])
	}
}

func TestBuildContextCapsRows(t *testing.T) {
	rows := make([]map[string]any, 75)
	for i := range rows {
		rows[i] = map[string]any{"n": int64(i)}
	}
	result := tabular.Result{Columns: []string{"n"}, Rows: rows, RowCount: 75}

	got := BuildContext(result, "all rows")
	if !strings.HasSuffix(got, "(25 more rows not shown)") {
		t.Fatalf("expected omitted-rows note, got tail %q", got[len(got)-40:])
	}
	// header + separator + 50 rows + note
	if lines := strings.Split(got, "\n"); len(lines) != 53 {
		t.Fatalf("expected 53 lines, got %d", len(lines))
	}
}

func TestGroupDigits(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0", "0"},
		{"999", "999"},
		{"1000", "1,000"},
		{"1234567", "1,234,567"},
		{"-98765.4321", "-98,765.4321"},
	}
	for _, tc := range cases {
		if got := groupDigits(tc.in); got != tc.want {
			t.Errorf("groupDigits(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatCellFallsBackToString(t *testing.T) {
	got := formatCell(struct{ A int }{A: 1})
	if got != fmt.Sprintf("%v", struct{ A int }{A: 1}) {
		t.Fatalf("formatCell fallback = %q", got)
	}
}
