package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/insight-pipeline/internal/config"
	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/llm/llmtest"
)

const salesCSV = "region,sales\nEast,100\nWest,50\nEast,25\n"

const totalSalesPlan = `{
  "columns_to_use": ["region"],
  "aggregations": [{"type": "sum", "column": "sales"}],
  "group_by": ["region"],
  "order_by": [{"column": "sum_sales", "direction": "desc"}],
  "confidence": 0.9,
  "explain": "Sum sales per region."
}`

const chartOutput = `{
  "charts": [{"type": "bar", "x": "region", "y": "sum_sales", "title": "Sales by region"}],
  "insights": ["East leads sales."]
}`

const columnDescriptions = `[
  {"column_name": "region", "description": "Sales region"},
  {"column_name": "sales", "description": "Sales amount in dollars"}
]`

// writeFile writes content under a fresh temp dir and returns its path
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// scriptedClient answers each delegate by tier: descriptions and verdicts on
// lite, output on standard, plans on advanced
func scriptedClient(verdict string) *llmtest.MockClient {
	return &llmtest.MockClient{
		GenerateJSONFunc: func(_ context.Context, _ string, tier llm.ModelTier) (string, error) {
			switch tier {
			case llm.TierLite:
				return columnDescriptions, nil
			case llm.TierAdvanced:
				return totalSalesPlan, nil
			default:
				return chartOutput, nil
			}
		},
		GenerateContentFunc: llmtest.Respond(verdict),
	}
}

// useClient swaps the delegate constructor for the duration of a test
func useClient(t *testing.T, client llm.Client) {
	t.Helper()
	prev := newClient
	newClient = func(context.Context, config.Config, *slog.Logger) (llm.Client, error) {
		return client, nil
	}
	t.Cleanup(func() { newClient = prev })
}
