// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxRetries is the number of planner re-entries allowed per run
	DefaultMaxRetries = 3
	// DefaultStageTimeout bounds every delegate call
	DefaultStageTimeout = 60 * time.Second
	// DefaultListenAddr is the address used by the serve command
	DefaultListenAddr = ":8080"
)

// Config represents the configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Inputs
	Dataset    string `json:"dataset,omitempty" yaml:"dataset,omitempty"`                                 // Path to a CSV or HTML dataset
	DatasetURL string `json:"dataset_url,omitempty" yaml:"dataset_url,omitempty" validate:"omitempty,url"` // URL to fetch the dataset from
	Query      string `json:"query,omitempty" yaml:"query,omitempty"`                                     // Natural-language question

	// Delegate
	Provider     string `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=gemini anthropic openai"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`             // Overrides the model for every tier
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`       // OpenAI-compatible endpoint
	APIKey       string `json:"api_key,omitempty" yaml:"api_key,omitempty"`         // Provider API key
	StageTimeout string `json:"stage_timeout,omitempty" yaml:"stage_timeout,omitempty"` // Per-call delegate timeout, e.g. "60s"

	// Pipeline
	MaxRetries    int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"gte=0,lte=20"`
	QueryStrategy string `json:"query_strategy,omitempty" yaml:"query_strategy,omitempty" validate:"omitempty,oneof=template delegate"`
	StoreEngine   string `json:"store_engine,omitempty" yaml:"store_engine,omitempty" validate:"omitempty,oneof=sqlite duckdb"`

	// Behavior
	UseBrowser  bool   `json:"use_browser,omitempty" yaml:"use_browser,omitempty"` // Render dataset pages with a headless browser
	Verbose     bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`         // Print detailed debug information
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	ListenAddr  string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty" validate:"omitempty,hostname_port"`

	// Hosts the serve command may fetch dataset_url from; empty disables remote datasets
	AllowedURLHosts []string `json:"allowed_url_hosts,omitempty" yaml:"allowed_url_hosts,omitempty" validate:"dive,required"`
}

var validate = validator.New()

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// Validate mutually exclusive fields
	if c.Dataset != "" && c.DatasetURL != "" {
		return fmt.Errorf("config error: 'dataset' and 'dataset_url' are mutually exclusive")
	}

	if _, err := c.StageTimeoutDuration(); err != nil {
		return err
	}

	// Validate file paths exist (if specified)
	if c.Dataset != "" {
		if _, err := os.Stat(c.Dataset); os.IsNotExist(err) {
			return fmt.Errorf("config error: dataset file not found: %s", c.Dataset)
		}
	}

	return nil
}

// StageTimeoutDuration parses stage_timeout, returning DefaultStageTimeout when unset
func (c *Config) StageTimeoutDuration() (time.Duration, error) {
	if c.StageTimeout == "" {
		return DefaultStageTimeout, nil
	}
	d, err := time.ParseDuration(c.StageTimeout)
	if err != nil {
		return 0, fmt.Errorf("config error: invalid 'stage_timeout' %q: %w", c.StageTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config error: 'stage_timeout' must be positive")
	}
	return d, nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Dataset == "" {
		result.Dataset = defaults.Dataset
	}
	if result.DatasetURL == "" {
		result.DatasetURL = defaults.DatasetURL
	}
	if result.Query == "" {
		result.Query = defaults.Query
	}
	if result.Provider == "" {
		result.Provider = defaults.Provider
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.BaseURL == "" {
		result.BaseURL = defaults.BaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.StageTimeout == "" {
		result.StageTimeout = defaults.StageTimeout
	}
	if result.QueryStrategy == "" {
		result.QueryStrategy = defaults.QueryStrategy
	}
	if result.StoreEngine == "" {
		result.StoreEngine = defaults.StoreEngine
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ListenAddr == "" {
		if defaults.ListenAddr != "" {
			result.ListenAddr = defaults.ListenAddr
		} else {
			result.ListenAddr = DefaultListenAddr
		}
	}

	if len(result.AllowedURLHosts) == 0 {
		result.AllowedURLHosts = defaults.AllowedURLHosts
	}

	// Int fields: use default if zero
	if result.MaxRetries == 0 {
		if defaults.MaxRetries > 0 {
			result.MaxRetries = defaults.MaxRetries
		} else {
			result.MaxRetries = DefaultMaxRetries
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
