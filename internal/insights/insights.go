// Package insights turns a validated result table into chart suggestions
// and short narrative insights.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/prompts"
	"github.com/jonathan/insight-pipeline/internal/schemas"
	"github.com/jonathan/insight-pipeline/internal/types"
)

const stageName = "output"

// SampleSize is the number of result rows shown to the delegate
const SampleSize = 5

// Input is the read-only view of pipeline state the output stage needs
type Input struct {
	Query    string
	Metadata types.Metadata
	Table    *types.Table
}

// Result is the output stage's contribution to pipeline state.
// Output is nil only when the precondition failed.
type Result struct {
	Output  *types.Output
	Outcome llm.Outcome
	Logs    []string
	Err     error
}

// Stage is the output stage
type Stage struct {
	client llm.Client
	logger *slog.Logger
}

// NewStage creates an output stage backed by client
func NewStage(client llm.Client, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{client: client, logger: logger}
}

// Run produces charts and insights. A non-empty result table always yields
// a non-nil Output, degraded to the raw reply when it cannot be parsed.
func (s *Stage) Run(ctx context.Context, in Input) Result {
	if in.Table.Empty() {
		err := &types.PreconditionError{Stage: stageName, Field: "result_table"}
		s.logger.Warn("output stage precondition failed", "error", err)
		return Result{
			Logs: []string{fmt.Sprintf("Output Agent Error: %v", err)},
			Err:  err,
		}
	}

	metadataJSON, err := json.MarshalIndent(in.Metadata, "", "  ")
	if err != nil {
		return s.failed(fmt.Errorf("failed to marshal metadata: %w", err))
	}
	prompt, err := prompts.Render("output.json", "suggest-insights", map[string]string{
		"Sample":   in.Table.SampleJSON(SampleSize),
		"Metadata": string(metadataJSON),
		"Query":    in.Query,
	})
	if err != nil {
		return s.failed(err)
	}

	raw, err := s.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return s.failed(err)
	}

	output, outcome, err := ParseOutput(raw)
	if err != nil {
		s.logger.Warn("output not parseable, returning raw text", "error", err)
		return Result{
			Output:  output,
			Outcome: outcome,
			Logs:    []string{"Output Agent: response was not valid JSON; returning raw text as a single insight."},
			Err:     err,
		}
	}

	return Result{
		Output:  output,
		Outcome: outcome,
		Logs: []string{fmt.Sprintf("Output Agent: generated %d chart suggestion(s) and %d insight(s).",
			len(output.Charts), len(output.Insights))},
	}
}

// ParseOutput decodes the delegate reply. When it is malformed the returned
// output has no charts and the trimmed reply as its single insight, and the
// error is a *types.DelegateFormatError.
func ParseOutput(raw string) (*types.Output, llm.Outcome, error) {
	doc, outcome, err := llm.DecodeJSON[json.RawMessage](stageName, raw)
	if err == nil {
		err = schemas.ValidateOutputDocument(doc)
	}
	var output types.Output
	if err == nil {
		err = json.Unmarshal(doc, &output)
	}
	if err != nil {
		var formatErr *types.DelegateFormatError
		if !errors.As(err, &formatErr) {
			err = &types.DelegateFormatError{Stage: stageName, Raw: raw, Cause: err}
		}
		return types.DegradedOutput(strings.TrimSpace(raw)), llm.OutcomeMalformed, err
	}

	if output.Charts == nil {
		output.Charts = []types.Chart{}
	}
	if output.Insights == nil {
		output.Insights = []string{}
	}
	for i := range output.Charts {
		output.Charts[i].Type = strings.ToLower(strings.TrimSpace(output.Charts[i].Type))
	}
	return &output, outcome, nil
}

func (s *Stage) failed(err error) Result {
	s.logger.Warn("insight generation failed", "error", err)
	return Result{
		Output: &types.Output{
			Charts:   []types.Chart{},
			Insights: []string{fmt.Sprintf("Insight generation failed: %v", err)},
		},
		Outcome: llm.OutcomeMalformed,
		Logs:    []string{fmt.Sprintf("Output Agent Error: %v", err)},
		Err:     err,
	}
}
