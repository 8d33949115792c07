package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rizardo-maker/aiva-server-sub000/internal/classify"
	"github.com/rizardo-maker/aiva-server-sub000/internal/genai"
	"github.com/rizardo-maker/aiva-server-sub000/internal/observability"
	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

// ErrServiceUnavailable is returned only when the fallback language-model
// call itself fails; every other stage failure becomes a degraded answer.
var ErrServiceUnavailable = errors.New("insight service unavailable")

// fallbackConfidence marks a degraded answer.
const fallbackConfidence = 0.3

const fallbackPrefix = "I couldn't access the data needed to answer this question. "

type Request struct {
	Question             string          `json:"question"`
	RequesterID          string          `json:"requester_id"`
	DatasetID            string          `json:"dataset_id,omitempty"`
	ConnectionID         string          `json:"connection_id,omitempty"`
	WorkspaceID          string          `json:"workspace_id,omitempty"`
	DialectOverride      tabular.Dialect `json:"dialect,omitempty"`
	IncludeVisualization bool            `json:"include_visualization"`
}

type Response struct {
	ID            string          `json:"id"`
	Answer        string          `json:"answer"`
	Data          *tabular.Result `json:"data,omitempty"`
	Query         string          `json:"query,omitempty"`
	Dialect       tabular.Dialect `json:"dialect,omitempty"`
	Visualization *Visualization  `json:"visualization,omitempty"`
	Confidence    float64         `json:"confidence"`
	ExecutionTime time.Duration   `json:"-"`
	TokensUsed    int             `json:"tokens_used"`
}

// QueryRunner executes classified queries and serves dataset metadata.
type QueryRunner interface {
	Execute(ctx context.Context, query tabular.Query) (tabular.Result, error)
	ListDatasets(ctx context.Context, workspaceID string) ([]tabular.Dataset, error)
	GetSchema(ctx context.Context, datasetID, workspaceID string) (tabular.Schema, error)
}

// AnswerGenerator produces the natural-language answer, with and without a
// data context.
type AnswerGenerator interface {
	Generate(ctx context.Context, question, dataContext, queryText string, dialect tabular.Dialect) (genai.Insight, error)
	GenerateFallback(ctx context.Context, question string) (genai.Insight, error)
}

// Service sequences the whole pipeline for one request and owns the single
// fallback path when any stage fails.
type Service struct {
	classifier classify.Classifier
	runner     QueryRunner
	answers    AnswerGenerator
	queries    genai.QueryGenerator
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(classifier classify.Classifier, runner QueryRunner, answers AnswerGenerator, queries genai.QueryGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		classifier: classifier,
		runner:     runner,
		answers:    answers,
		queries:    queries,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessDataQuestion runs the full pipeline. Callers always receive a
// well-formed Response unless the fallback language-model call fails too.
func (s *Service) ProcessDataQuestion(ctx context.Context, req Request) (Response, error) {
	start := s.now()

	response, err := s.runPipeline(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "insight pipeline degraded",
			slog.String("requester_id", req.RequesterID),
			slog.Any("error", err),
		)
		fallback, fallbackErr := s.answers.GenerateFallback(ctx, req.Question)
		if fallbackErr != nil {
			return Response{}, fmt.Errorf("%w: %v (pipeline failure: %v)", ErrServiceUnavailable, fallbackErr, err)
		}
		elapsed := s.now().Sub(start)
		observability.ObserveInsight(fallback.TokensUsed, true, elapsed)
		return Response{
			ID:            uuid.NewString(),
			Answer:        fallbackPrefix + fallback.Content,
			Confidence:    fallbackConfidence,
			ExecutionTime: elapsed,
			TokensUsed:    fallback.TokensUsed,
		}, nil
	}

	response.ID = uuid.NewString()
	response.ExecutionTime = s.now().Sub(start)
	observability.ObserveInsight(response.TokensUsed, false, response.ExecutionTime)
	return response, nil
}

func (s *Service) runPipeline(ctx context.Context, req Request) (Response, error) {
	analysis := s.analyze(req.Question, req.DialectOverride)

	// Best-effort schema lookup. Failure never aborts the pipeline.
	var schema *tabular.Schema
	if req.DatasetID != "" {
		fetched, err := s.runner.GetSchema(ctx, req.DatasetID, req.WorkspaceID)
		if err != nil {
			s.logger.WarnContext(ctx, "schema fetch failed, continuing without schema",
				slog.String("dataset_id", req.DatasetID),
				slog.Any("error", err),
			)
		} else {
			schema = &fetched
		}
	}

	queryText, err := s.queries.GenerateQuery(ctx, req.Question, analysis.Dialect, schema)
	if err != nil {
		return Response{}, fmt.Errorf("generate query text: %w", err)
	}

	result, err := s.runner.Execute(ctx, tabular.Query{
		Text:         queryText,
		Dialect:      analysis.Dialect,
		DatasetID:    req.DatasetID,
		WorkspaceID:  req.WorkspaceID,
		ConnectionID: req.ConnectionID,
	})
	if err != nil {
		return Response{}, err
	}

	dataContext := BuildContext(result, req.Question)
	answer, err := s.answers.Generate(ctx, req.Question, dataContext, queryText, analysis.Dialect)
	if err != nil {
		return Response{}, err
	}

	response := Response{
		Answer:     answer.Content,
		Data:       &result,
		Query:      queryText,
		Dialect:    analysis.Dialect,
		Confidence: analysis.Confidence,
		TokensUsed: answer.TokensUsed,
	}
	if req.IncludeVisualization && result.RowCount > 0 {
		visualization := SelectVisualization(result)
		response.Visualization = &visualization
	}
	return response, nil
}

// ClassifyAndExecute is the combined helper: classify, generate, execute.
// Unlike ProcessDataQuestion it has no fallback path; errors propagate.
func (s *Service) ClassifyAndExecute(ctx context.Context, question string, opts ExecuteOptions) (ClassifiedResult, error) {
	analysis := s.analyze(question, opts.DialectOverride)

	var schema *tabular.Schema
	if opts.DatasetID != "" {
		if fetched, err := s.runner.GetSchema(ctx, opts.DatasetID, opts.WorkspaceID); err == nil {
			schema = &fetched
		}
	}

	queryText, err := s.queries.GenerateQuery(ctx, question, analysis.Dialect, schema)
	if err != nil {
		return ClassifiedResult{}, fmt.Errorf("generate query text: %w", err)
	}

	result, err := s.runner.Execute(ctx, tabular.Query{
		Text:         queryText,
		Dialect:      analysis.Dialect,
		DatasetID:    opts.DatasetID,
		WorkspaceID:  opts.WorkspaceID,
		ConnectionID: opts.ConnectionID,
	})
	if err != nil {
		return ClassifiedResult{}, err
	}

	return ClassifiedResult{
		Data:     result,
		Query:    queryText,
		Dialect:  analysis.Dialect,
		Analysis: analysis,
	}, nil
}

type ExecuteOptions struct {
	DatasetID       string
	WorkspaceID     string
	ConnectionID    string
	DialectOverride tabular.Dialect
}

type ClassifiedResult struct {
	Data     tabular.Result    `json:"data"`
	Query    string            `json:"query"`
	Dialect  tabular.Dialect   `json:"dialect"`
	Analysis classify.Analysis `json:"analysis"`
}

func (s *Service) ListAvailableDatasets(ctx context.Context, workspaceID string) ([]tabular.Dataset, error) {
	return s.runner.ListDatasets(ctx, workspaceID)
}

func (s *Service) GetDatasetSchema(ctx context.Context, datasetID, workspaceID string) (tabular.Schema, error) {
	return s.runner.GetSchema(ctx, datasetID, workspaceID)
}

// analyze applies the caller's dialect override when present; an override
// always wins and carries full confidence.
func (s *Service) analyze(question string, override tabular.Dialect) classify.Analysis {
	if override.Valid() {
		return classify.Analysis{
			Dialect:    override,
			Confidence: 1.0,
			Reasoning:  "caller-supplied dialect override",
		}
	}
	return s.classifier.Classify(question)
}
