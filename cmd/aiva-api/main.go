package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rizardo-maker/aiva-server-sub000/internal/api"
	"github.com/rizardo-maker/aiva-server-sub000/internal/auth"
	"github.com/rizardo-maker/aiva-server-sub000/internal/classify"
	"github.com/rizardo-maker/aiva-server-sub000/internal/config"
	"github.com/rizardo-maker/aiva-server-sub000/internal/credentials"
	"github.com/rizardo-maker/aiva-server-sub000/internal/executor"
	"github.com/rizardo-maker/aiva-server-sub000/internal/genai"
	"github.com/rizardo-maker/aiva-server-sub000/internal/insight"
	"github.com/rizardo-maker/aiva-server-sub000/internal/observability"
	"github.com/rizardo-maker/aiva-server-sub000/internal/querycache"
	"github.com/rizardo-maker/aiva-server-sub000/internal/relational"
	"github.com/rizardo-maker/aiva-server-sub000/internal/tabular"
)

func main() {
	cfg, err := config.LoadFromEnv("aiva-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	tokens, err := credentials.NewClientCredentialsProvider(credentials.Config{
		TokenURL:     cfg.Credentials.TokenURL,
		ClientID:     cfg.Credentials.ClientID,
		ClientSecret: cfg.Credentials.ClientSecret,
		Timeout:      cfg.Credentials.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize credentials provider", slog.Any("error", err))
		os.Exit(1)
	}

	tabularClient, err := tabular.NewClient(tabular.ClientConfig{BaseURL: cfg.Tabular.BaseURL})
	if err != nil {
		logger.Error("failed to initialize tabular client", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := querycache.NewMemoryCache()
	go cache.StartSweeper(ctx, cfg.Cache.SweepInterval)

	queryExecutor := executor.New(tabularClient, tokens, cache, logger, executor.Config{
		Scope:    cfg.Tabular.Scope,
		RowLimit: cfg.Tabular.RowLimit,
		CacheTTL: cfg.Cache.TTL,
	})
	if cfg.Relational.Connections != "" {
		directRunner, err := relational.NewRunner(relational.Config{
			Connections:     cfg.Relational.Connections,
			MaxOpenConns:    cfg.Relational.MaxOpenConns,
			MaxIdleConns:    cfg.Relational.MaxIdleConns,
			ConnMaxIdleTime: cfg.Relational.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Relational.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to initialize relational connections", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = directRunner.Close() }()
		queryExecutor = queryExecutor.WithDirectRunner(directRunner)
	}

	chatClient, err := genai.NewClient(genai.Config{
		BaseURL:     cfg.GenAI.BaseURL,
		APIKey:      cfg.GenAI.APIKey,
		Model:       cfg.GenAI.Model,
		Temperature: cfg.GenAI.Temperature,
		MaxTokens:   cfg.GenAI.MaxTokens,
		Timeout:     cfg.GenAI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize genai client", slog.Any("error", err))
		os.Exit(1)
	}

	var queryGenerator genai.QueryGenerator = genai.NewTemplateGenerator(cfg.Tabular.RowLimit)
	if cfg.GenAI.QueryGenEnabled {
		queryGenerator = genai.NewLLMGenerator(chatClient, cfg.Tabular.RowLimit)
	}

	insightService := insight.NewService(
		classify.NewKeywordClassifier(),
		queryExecutor,
		genai.NewInsightClient(chatClient),
		queryGenerator,
		logger,
	)

	deps := api.Dependencies{
		Logger:   logger,
		Insights: insightService,
		Readiness: api.CombineReadinessChecks(
			api.CheckTabularConfig(cfg),
			api.CheckCredentialsConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
