package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

// QueryGenerator produces executable query text for the chosen dialect.
// This is the pipeline's extension point for real natural-language-to-query
// translation.
type QueryGenerator interface {
	GenerateQuery(ctx context.Context, question string, dialect tabular.Dialect, schema *tabular.Schema) (string, error)
}

// TemplateGenerator is the stub implementation: a templated placeholder that
// scans the first schema table when one is known.
type TemplateGenerator struct {
	RowLimit int
}

func NewTemplateGenerator(rowLimit int) *TemplateGenerator {
	if rowLimit <= 0 {
		rowLimit = 50
	}
	return &TemplateGenerator{RowLimit: rowLimit}
}

func (g *TemplateGenerator) GenerateQuery(_ context.Context, question string, dialect tabular.Dialect, schema *tabular.Schema) (string, error) {
	table := "data"
	if schema != nil && len(schema.Tables) > 0 && schema.Tables[0].Name != "" {
		table = schema.Tables[0].Name
	}
	switch dialect {
	case tabular.DialectTabular:
		return fmt.Sprintf("evaluate topn(%d, '%s') // %s", g.RowLimit, table, strings.TrimSpace(question)), nil
	case tabular.DialectRelational:
		return fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, g.RowLimit), nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

const tabularQueryGenPrompt = "You convert business questions into a single tabular-expression " +
	"analytics query for the referenced dataset. Return ONLY the query. No markdown, no explanation."

const relationalQueryGenPrompt = "You convert business questions into a single read-only SQL query " +
	"(SELECT or WITH). Return ONLY SQL. No markdown, no explanation."

// LLMGenerator asks the chat-completion service for query text.
type LLMGenerator struct {
	chat     *Client
	rowLimit int
}

func NewLLMGenerator(chat *Client, rowLimit int) *LLMGenerator {
	if rowLimit <= 0 {
		rowLimit = 200
	}
	return &LLMGenerator{chat: chat, rowLimit: rowLimit}
}

func (g *LLMGenerator) GenerateQuery(ctx context.Context, question string, dialect tabular.Dialect, schema *tabular.Schema) (string, error) {
	systemPrompt := relationalQueryGenPrompt
	if dialect == tabular.DialectTabular {
		systemPrompt = tabularQueryGenPrompt
	}

	var user strings.Builder
	if schema != nil {
		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("marshal schema context: %w", err)
		}
		fmt.Fprintf(&user, "Schema (JSON):\n%s\n\n", string(schemaJSON))
	}
	fmt.Fprintf(&user, "Question:\n%s\n\nRules:\n- Use only listed tables and columns.\n- Limit output to %d rows unless the question asks otherwise.\n- Output a single query only.",
		strings.TrimSpace(question), g.rowLimit)

	completion, err := g.chat.Complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user.String()},
	})
	if err != nil {
		return "", fmt.Errorf("generate query text: %w", err)
	}

	queryText := stripMarkdownFences(completion.Content)
	if strings.TrimSpace(queryText) == "" {
		return "", fmt.Errorf("model returned empty query text")
	}
	return queryText, nil
}

func stripMarkdownFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
