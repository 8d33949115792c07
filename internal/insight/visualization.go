package insight

import (
	"encoding/json"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

const (
	// chartRowCap is the largest result a bar chart stays readable for.
	chartRowCap = 50
	// tableRowCap bounds the rows embedded in a table spec.
	tableRowCap = 100
	// typeSampleRows is how many rows column-type inference samples. A null
	// in the first row no longer decides a column's type.
	typeSampleRows = 10
)

type VisualizationKind string

const (
	VisualizationMetric VisualizationKind = "metric"
	VisualizationChart  VisualizationKind = "chart"
	VisualizationTable  VisualizationKind = "table"
)

// Visualization is a tagged union: exactly one of Metric, Chart, Table is
// set, named by Kind.
type Visualization struct {
	Kind   VisualizationKind `json:"kind"`
	Metric *MetricSpec       `json:"metric,omitempty"`
	Chart  *ChartSpec        `json:"chart,omitempty"`
	Table  *TableSpec        `json:"table,omitempty"`
}

type MetricSpec struct {
	Value  any    `json:"value"`
	Label  string `json:"label"`
	Format string `json:"format"`
}

type ChartSpec struct {
	ChartType string           `json:"chart_type"`
	XAxis     string           `json:"x_axis"`
	YAxis     string           `json:"y_axis"`
	Data      []map[string]any `json:"data"`
}

type TableSpec struct {
	Columns   []string         `json:"columns"`
	Data      []map[string]any `json:"data"`
	TotalRows int              `json:"total_rows"`
}

// SelectVisualization picks a presentation shape from the result's shape.
// First match wins: single numeric value, bar chart, table.
func SelectVisualization(result tabular.Result) Visualization {
	numeric, textual := inferColumnTypes(result)

	if result.RowCount == 1 && len(numeric) == 1 {
		column := numeric[0]
		return Visualization{
			Kind: VisualizationMetric,
			Metric: &MetricSpec{
				Value:  result.Rows[0][column],
				Label:  column,
				Format: "number",
			},
		}
	}

	if len(numeric) >= 1 && len(textual) >= 1 && result.RowCount <= chartRowCap {
		return Visualization{
			Kind: VisualizationChart,
			Chart: &ChartSpec{
				ChartType: "bar",
				XAxis:     textual[0],
				YAxis:     numeric[0],
				Data:      result.Rows,
			},
		}
	}

	data := result.Rows
	if len(data) > tableRowCap {
		data = data[:tableRowCap]
	}
	return Visualization{
		Kind: VisualizationTable,
		Table: &TableSpec{
			Columns:   result.Columns,
			Data:      data,
			TotalRows: result.RowCount,
		},
	}
}

// inferColumnTypes buckets columns into numeric and textual by sampling the
// first non-null value of each column, preserving column order.
func inferColumnTypes(result tabular.Result) (numeric, textual []string) {
	sample := result.Rows
	if len(sample) > typeSampleRows {
		sample = sample[:typeSampleRows]
	}
	for _, column := range result.Columns {
		for _, row := range sample {
			value, ok := row[column]
			if !ok || value == nil {
				continue
			}
			if isNumeric(value) {
				numeric = append(numeric, column)
			} else if _, isString := value.(string); isString {
				textual = append(textual, column)
			}
			break
		}
	}
	return numeric, textual
}

func isNumeric(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}
