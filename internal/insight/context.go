package insight

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

const (
	// contextRowCap bounds how many rows reach the language model. This is
	// independent of the row limit requested from the analytics service.
	contextRowCap = 50
	// cellTruncateLen bounds individual string cells.
	cellTruncateLen = 50
)

// BuildContext renders a query result as a compact tab-delimited table
// suitable for a chat prompt.
func BuildContext(result tabular.Result, question string) string {
	if result.RowCount == 0 {
		return fmt.Sprintf("The query for %q returned no rows. There is no data to summarize.", strings.TrimSpace(question))
	}

	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, "\t"))
	b.WriteByte('\n')

	separators := make([]string, len(result.Columns))
	for i := range separators {
		separators[i] = "---"
	}
	b.WriteString(strings.Join(separators, "\t"))
	b.WriteByte('\n')

	rows := result.Rows
	if len(rows) > contextRowCap {
		rows = rows[:contextRowCap]
	}
	for _, row := range rows {
		cells := make([]string, len(result.Columns))
		for i, column := range result.Columns {
			cells[i] = formatCell(row[column])
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteByte('\n')
	}

	if result.RowCount > contextRowCap {
		fmt.Fprintf(&b, "(%d more rows not shown)", result.RowCount-contextRowCap)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case float64:
		return groupDigits(strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		return groupDigits(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case int:
		return groupDigits(strconv.FormatInt(int64(v), 10))
	case int32:
		return groupDigits(strconv.FormatInt(int64(v), 10))
	case int64:
		return groupDigits(strconv.FormatInt(v, 10))
	case bool:
		return strconv.FormatBool(v)
	case string:
		return truncate(v)
	default:
		return truncate(fmt.Sprintf("%v", v))
	}
}

func truncate(value string) string {
	if len(value) <= cellTruncateLen {
		return value
	}
	return value[:cellTruncateLen] + "..."
}

// groupDigits inserts thousands separators into the integer part of a
// formatted number.
func groupDigits(formatted string) string {
	sign := ""
	if strings.HasPrefix(formatted, "-") {
		sign = "-"
		formatted = formatted[1:]
	}
	integer := formatted
	fraction := ""
	if dot := strings.IndexByte(formatted, '.'); dot >= 0 {
		integer = formatted[:dot]
		fraction = formatted[dot:]
	}
	if len(integer) <= 3 {
		return sign + integer + fraction
	}

	var b strings.Builder
	lead := len(integer) % 3
	if lead > 0 {
		b.WriteString(integer[:lead])
	}
	for i := lead; i < len(integer); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(integer[i : i+3])
	}
	return sign + b.String() + fraction
}
