package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/types"
)

const stageName = "metadata"

// Describe asks the delegate for a description of every profiled column.
// The profile's names, dtypes and samples are kept as-is; only descriptions
// are taken from the reply. When the reply cannot be decoded the profile is
// returned unchanged together with the decode error.
func Describe(ctx context.Context, client llm.Client, profile types.Metadata) (types.Metadata, error) {
	out := make(types.Metadata, len(profile))
	copy(out, profile)
	if len(profile) == 0 {
		return out, nil
	}

	input, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return out, fmt.Errorf("failed to marshal column summary: %w", err)
	}
	prompt := llm.BuildExtractionPrompt(llm.ColumnDescriptionsSchema(), string(input))

	raw, err := client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return out, fmt.Errorf("failed to describe columns: %w", err)
	}

	described, outcome, err := llm.DecodeJSON[[]types.ColumnDescriptor](stageName, raw)
	if err != nil {
		return out, err
	}
	slog.Debug("column descriptions decoded", "outcome", outcome.String(), "columns", len(described))

	byName := make(map[string]string, len(described))
	for _, col := range described {
		byName[strings.ToLower(strings.TrimSpace(col.Name))] = strings.TrimSpace(col.Description)
	}
	for i := range out {
		if desc, ok := byName[strings.ToLower(out[i].Name)]; ok {
			out[i].Description = desc
		}
	}
	return out, nil
}

// Generate profiles the table and, when a client is given, describes it.
// A description failure is logged and the undescribed profile is returned.
func Generate(ctx context.Context, client llm.Client, table *types.Table, logger *slog.Logger) (types.Metadata, error) {
	if logger == nil {
		logger = slog.Default()
	}

	profile, err := Profile(ctx, table)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return profile, nil
	}

	md, err := Describe(ctx, client, profile)
	if err != nil {
		logger.Warn("metadata: column descriptions unavailable; continuing without them", "error", err)
	}
	return md, nil
}
