package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/insight-pipeline/internal/config"
	"github.com/jonathan/insight-pipeline/internal/dataset"
	"github.com/jonathan/insight-pipeline/internal/db"
	"github.com/jonathan/insight-pipeline/internal/insights"
	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/metrics"
	"github.com/jonathan/insight-pipeline/internal/pipeline"
	"github.com/jonathan/insight-pipeline/internal/planning"
	"github.com/jonathan/insight-pipeline/internal/querying"
	"github.com/jonathan/insight-pipeline/internal/store"
	"github.com/jonathan/insight-pipeline/internal/types"
	"github.com/jonathan/insight-pipeline/internal/validation"
)

// newClient builds the delegate client; tests replace it with a mock
var newClient = newLLMClient

// newLLMClient creates the provider client and guards every call with the
// stage timeout and retries
func newLLMClient(ctx context.Context, cfg config.Config, logger *slog.Logger) (llm.Client, error) {
	provider := llm.Provider(cfg.Provider)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s environment variable or --api-key flag is required", provider.APIKeyEnv())
	}

	llmCfg, err := llm.ConfigFor(provider)
	if err != nil {
		return nil, err
	}
	if cfg.Model != "" {
		llmCfg = llmCfg.WithAllModels(cfg.Model)
	}
	if cfg.BaseURL != "" {
		llmCfg.BaseURL = cfg.BaseURL
	}

	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	timeout, err := cfg.StageTimeoutDuration()
	if err != nil {
		return nil, err
	}
	return llm.NewGuardedClient(client, llm.GuardOptions{
		Timeout:  timeout,
		Logger:   logger,
		Observer: observeDelegateCall,
	}), nil
}

func observeDelegateCall(tier llm.ModelTier, err error, elapsed time.Duration) {
	metrics.ObserveDelegateCall(string(tier), err, elapsed)
}

// orchestratorFactory builds orchestrators sharing one client and recorder
func orchestratorFactory(cfg config.Config, client llm.Client, recorder pipeline.Recorder, logger *slog.Logger) func(pipeline.ProgressCallback) (*pipeline.Orchestrator, error) {
	return func(onProgress pipeline.ProgressCallback) (*pipeline.Orchestrator, error) {
		strategy, err := querying.ParseStrategy(cfg.QueryStrategy)
		if err != nil {
			return nil, err
		}
		engine, err := store.ParseEngine(cfg.StoreEngine)
		if err != nil {
			return nil, err
		}

		querier, err := querying.NewStage(querying.Config{
			Engine:   engine,
			Strategy: strategy,
			Client:   client,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}

		return pipeline.New(pipeline.Config{
			Logger:     logger,
			Planner:    planning.NewStage(client, logger),
			Querier:    querier,
			Validator:  validation.NewStage(client, logger),
			Reporter:   insights.NewStage(client, logger),
			MaxRetries: cfg.MaxRetries,
			Recorder:   recorder,
			OnProgress: onProgress,
		})
	}
}

// openRecorder connects to the audit database when one is configured
func openRecorder(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Debug("recording runs to database")
	return database, nil
}

// recorderOf keeps a nil database from becoming a non-nil Recorder
func recorderOf(database *db.DB) pipeline.Recorder {
	if database == nil {
		return nil
	}
	return database
}

// loadDataset reads the configured local file or URL
func loadDataset(ctx context.Context, cfg config.Config, logger *slog.Logger) (*types.Table, string, error) {
	loader := dataset.NewLoader(cfg.UseBrowser, 0, logger)
	switch {
	case cfg.Dataset != "":
		table, err := loader.LoadFile(cfg.Dataset)
		return table, cfg.Dataset, err
	case cfg.DatasetURL != "":
		table, err := loader.LoadURL(ctx, cfg.DatasetURL)
		return table, cfg.DatasetURL, err
	default:
		return nil, "", fmt.Errorf("either --dataset or --dataset-url must be provided (via flag or config)")
	}
}
