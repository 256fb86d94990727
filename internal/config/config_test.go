package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"dataset_url": "https://example.com/sales.csv",
		"query": "Total sales by region",
		"provider": "anthropic",
		"max_retries": 2,
		"stage_timeout": "30s",
		"verbose": true
	}`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://example.com/sales.csv", cfg.DatasetURL)
	assert.Equal(t, "Total sales by region", cfg.Query)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "30s", cfg.StageTimeout)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	content := `
dataset_url: https://example.com/sales.csv
query: Total sales by region
query_strategy: delegate
store_engine: duckdb
use_browser: true
allowed_url_hosts:
  - data.example.com
  - "*.cdn.example.com"
`
	for _, name := range []string{"config.yaml", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

			cfg, err := LoadConfig(tmpFile)
			require.NoError(t, err)

			assert.Equal(t, "https://example.com/sales.csv", cfg.DatasetURL)
			assert.Equal(t, "delegate", cfg.QueryStrategy)
			assert.Equal(t, "duckdb", cfg.StoreEngine)
			assert.True(t, cfg.UseBrowser)
			assert.Equal(t, []string{"data.example.com", "*.cdn.example.com"}, cfg.AllowedURLHosts)
		})
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	content := `{ invalid json }`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("query: [unclosed"), 0644))

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate(t *testing.T) {
	dataset := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(dataset, []byte("region,sales\nEast,1\n"), 0644))

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty config", cfg: Config{}},
		{
			name: "valid config",
			cfg: Config{
				Dataset:       dataset,
				Provider:      "openai",
				MaxRetries:    3,
				StageTimeout:  "45s",
				QueryStrategy: "template",
				StoreEngine:   "sqlite",
				ListenAddr:    ":9090",
			},
		},
		{name: "mutually exclusive", cfg: Config{Dataset: dataset, DatasetURL: "https://example.com/a.csv"}, wantErr: "mutually exclusive"},
		{name: "unknown provider", cfg: Config{Provider: "cohere"}, wantErr: "Provider"},
		{name: "unknown strategy", cfg: Config{QueryStrategy: "magic"}, wantErr: "QueryStrategy"},
		{name: "unknown engine", cfg: Config{StoreEngine: "mysql"}, wantErr: "StoreEngine"},
		{name: "negative retries", cfg: Config{MaxRetries: -1}, wantErr: "MaxRetries"},
		{name: "bad url", cfg: Config{DatasetURL: "not a url"}, wantErr: "DatasetURL"},
		{name: "bad timeout", cfg: Config{StageTimeout: "soon"}, wantErr: "stage_timeout"},
		{name: "zero timeout", cfg: Config{StageTimeout: "0s"}, wantErr: "must be positive"},
		{name: "missing dataset", cfg: Config{Dataset: "/nonexistent/sales.csv"}, wantErr: "dataset file not found"},
		{name: "blank allowed host", cfg: Config{AllowedURLHosts: []string{"example.com", ""}}, wantErr: "AllowedURLHosts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStageTimeoutDuration(t *testing.T) {
	cfg := Config{}
	d, err := cfg.StageTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, DefaultStageTimeout, d)

	cfg.StageTimeout = "90s"
	d, err = cfg.StageTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestMergeWithDefaults(t *testing.T) {
	defaults := Config{
		Query:       "Default question",
		Provider:    "gemini",
		APIKey:      "default-key",
		DatabaseURL: "postgres://localhost/insights",
		MaxRetries:  5,
	}

	partial := Config{
		Query:    "Custom question",
		Provider: "anthropic",
	}

	merged := partial.MergeWithDefaults(defaults)

	// Custom values should be preserved
	assert.Equal(t, "Custom question", merged.Query)
	assert.Equal(t, "anthropic", merged.Provider)

	// Default values should fill in empty fields
	assert.Equal(t, "default-key", merged.APIKey)
	assert.Equal(t, "postgres://localhost/insights", merged.DatabaseURL)
	assert.Equal(t, 5, merged.MaxRetries)
	assert.Equal(t, DefaultListenAddr, merged.ListenAddr)
}

func TestMergeWithDefaults_EmptyDefaults(t *testing.T) {
	cfg := Config{Query: "Test"}

	merged := cfg.MergeWithDefaults(Config{})

	assert.Equal(t, "Test", merged.Query)
	assert.Equal(t, DefaultMaxRetries, merged.MaxRetries)
	assert.Equal(t, DefaultListenAddr, merged.ListenAddr)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("DATABASE_URL", "postgres://db")

	assert.Equal(t, "gemini-key", FromEnv("").APIKey)
	assert.Equal(t, "gemini-key", FromEnv("gemini").APIKey)
	assert.Equal(t, "anthropic-key", FromEnv("anthropic").APIKey)
	assert.Equal(t, "postgres://db", FromEnv("").DatabaseURL)
}
