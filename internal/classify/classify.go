package classify

import (
	"strings"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

// Analysis is the outcome of classifying a free-text question.
type Analysis struct {
	Dialect    tabular.Dialect `json:"dialect"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

// Classifier decides which query dialect suits a question. Implementations
// must be total: any input yields an Analysis, never an error.
type Classifier interface {
	Classify(question string) Analysis
}

// KeywordClassifier scores a question against two fixed keyword bags and
// picks the dialect with more case-insensitive substring hits. Ties and
// zero scores fall back to the relational dialect.
type KeywordClassifier struct{}

var tabularKeywords = []string{
	"average",
	"summarize",
	"measure",
	"trend",
	"over time",
	"percentage",
	"distinct count",
	"top ",
	"breakdown",
	"kpi",
}

var relationalKeywords = []string{
	"select",
	"from table",
	"where",
	"join",
	"sql",
	"group by",
	"order by",
	"union",
	"schema",
	"rows in",
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(question string) Analysis {
	lowered := strings.ToLower(question)

	tabularHits := matchKeywords(lowered, tabularKeywords)
	relationalHits := matchKeywords(lowered, relationalKeywords)

	dialect := tabular.DialectRelational
	winning := relationalHits
	if len(tabularHits) > len(relationalHits) {
		dialect = tabular.DialectTabular
		winning = tabularHits
	}

	confidence := 0.5 + 0.1*float64(len(winning))
	if confidence > 0.9 {
		confidence = 0.9
	}

	reasoning := "no dialect keywords matched, defaulting to relational"
	if len(winning) > 0 {
		reasoning = "matched keywords: " + strings.Join(winning, ", ")
	}

	return Analysis{
		Dialect:    dialect,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}

func matchKeywords(lowered string, keywords []string) []string {
	var matched []string
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			matched = append(matched, keyword)
		}
	}
	return matched
}
