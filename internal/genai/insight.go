package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

const analystSystemPrompt = "You are a business analyst answering questions about query results. " +
	"Favor actionable insight over restating numbers, use plain business language, " +
	"and never speculate beyond what the data shows. Keep answers concise."

const fallbackSystemPrompt = "You are a business analyst. The data source could not be reached for " +
	"this question, so no query results are available. Briefly explain what the question is asking, " +
	"suggest how it could be answered once data access is restored, and do not invent numbers."

// Insight is a generated natural-language answer plus reported token usage.
type Insight struct {
	Content    string
	TokensUsed int
}

// InsightClient turns a question and its query results into prose.
type InsightClient struct {
	chat *Client
}

func NewInsightClient(chat *Client) *InsightClient {
	return &InsightClient{chat: chat}
}

// Generate builds the two-turn analyst prompt: a fixed system persona and a
// user turn carrying the question, the executed query, and the data context.
func (g *InsightClient) Generate(ctx context.Context, question, dataContext, queryText string, dialect tabular.Dialect) (Insight, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Question:\n%s\n", strings.TrimSpace(question))
	if strings.TrimSpace(queryText) != "" {
		fmt.Fprintf(&user, "\nExecuted %s query:\n%s\n", dialect, strings.TrimSpace(queryText))
	}
	if strings.TrimSpace(dataContext) != "" {
		fmt.Fprintf(&user, "\nQuery results:\n%s\n", dataContext)
	}

	completion, err := g.chat.Complete(ctx, []Message{
		{Role: "system", Content: analystSystemPrompt},
		{Role: "user", Content: user.String()},
	})
	if err != nil {
		return Insight{}, fmt.Errorf("generate insight: %w", err)
	}
	return Insight{Content: completion.Content, TokensUsed: completion.TokensUsed}, nil
}

// GenerateFallback answers with no data context after an upstream failure.
func (g *InsightClient) GenerateFallback(ctx context.Context, question string) (Insight, error) {
	completion, err := g.chat.Complete(ctx, []Message{
		{Role: "system", Content: fallbackSystemPrompt},
		{Role: "user", Content: "Question:\n" + strings.TrimSpace(question)},
	})
	if err != nil {
		return Insight{}, fmt.Errorf("generate fallback insight: %w", err)
	}
	return Insight{Content: completion.Content, TokensUsed: completion.TokensUsed}, nil
}
