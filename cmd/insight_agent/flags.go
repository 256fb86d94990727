package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/insight-pipeline/internal/config"
)

// commonFlags are the configuration flags shared by run, metadata and serve
type commonFlags struct {
	configPath    string
	dataset       string
	datasetURL    string
	provider      string
	model         string
	baseURL       string
	apiKey        string
	stageTimeout  string
	maxRetries    int
	queryStrategy string
	storeEngine   string
	useBrowser    bool
	verbose       bool
	databaseURL   string
}

func addCommonFlags(cmd *cobra.Command, f *commonFlags) {
	// Config file flag (processed first)
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to a .json or .yaml config file (values can be overridden by other flags)")

	cmd.Flags().StringVarP(&f.dataset, "dataset", "d", "", "Path to a CSV or HTML dataset (mutually exclusive with --dataset-url)")
	cmd.Flags().StringVar(&f.datasetURL, "dataset-url", "", "URL to fetch the dataset from (mutually exclusive with --dataset)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider: gemini, anthropic or openai (default gemini)")
	cmd.Flags().StringVar(&f.model, "model", "", "Use one model for every tier instead of the provider defaults")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Endpoint override for OpenAI-compatible providers")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "Provider API key (optional, defaults to the provider's env var)")
	cmd.Flags().StringVar(&f.stageTimeout, "stage-timeout", "", "Timeout for each delegate call, e.g. 60s")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "Planner re-entries allowed after a not valid verdict (default 3)")
	cmd.Flags().StringVar(&f.queryStrategy, "strategy", "", "Query strategy: template or delegate (default template)")
	cmd.Flags().StringVar(&f.storeEngine, "engine", "", "Embedded SQL engine: sqlite or duckdb (default sqlite)")
	cmd.Flags().BoolVar(&f.useBrowser, "use-browser", false, "Render dataset pages in a headless browser (requires Chrome)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print detailed debug information")

	// Database URL for run history
	cmd.Flags().StringVar(&f.databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
}

// resolveConfig layers the config file, changed flags, the environment and
// defaults, in that order of priority, then validates the result.
func resolveConfig(cmd *cobra.Command, f *commonFlags) (config.Config, error) {
	// Step 1: Load config file if provided
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Step 2: Apply CLI overrides; only flags that were explicitly set win
	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.Dataset = f.dataset
		cfg.DatasetURL = ""
	}
	if flags.Changed("dataset-url") {
		cfg.DatasetURL = f.datasetURL
		if !flags.Changed("dataset") {
			cfg.Dataset = ""
		}
	}
	if flags.Changed("provider") {
		cfg.Provider = f.provider
	}
	if flags.Changed("model") {
		cfg.Model = f.model
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if flags.Changed("api-key") {
		cfg.APIKey = f.apiKey
	}
	if flags.Changed("stage-timeout") {
		cfg.StageTimeout = f.stageTimeout
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if flags.Changed("strategy") {
		cfg.QueryStrategy = f.queryStrategy
	}
	if flags.Changed("engine") {
		cfg.StoreEngine = f.storeEngine
	}
	if flags.Changed("use-browser") {
		cfg.UseBrowser = f.useBrowser
	}
	if flags.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = f.databaseURL
	}

	// Step 3: Environment and defaults fill what is still unset
	cfg = cfg.MergeWithDefaults(config.FromEnv(cfg.Provider))

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
