package config

import (
	"os"

	"github.com/jonathan/insight-pipeline/internal/llm"
)

// EnvDatabaseURL holds the PostgreSQL connection URL for the audit store
const EnvDatabaseURL = "DATABASE_URL"

// FromEnv returns a Config holding the values available from the environment.
// It is merged under file and flag values, so it only supplies defaults.
func FromEnv(provider string) Config {
	return Config{
		APIKey:      os.Getenv(llm.Provider(provider).APIKeyEnv()),
		DatabaseURL: os.Getenv(EnvDatabaseURL),
	}
}
