// Package main provides the insight_agent CLI: it answers natural-language
// questions about tabular datasets with validated SQL results and insights.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/insight-pipeline/internal/metrics"
)

// Set by -ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "insight_agent",
	Short:   "Natural-language questions over tabular data",
	Long:    "insight_agent plans a query for a natural-language question, runs it against the uploaded dataset, has the result judged, and returns chart suggestions and insights. Not-valid results are re-planned a bounded number of times.",
	Version: version,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
