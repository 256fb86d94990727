package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/prompts"
	"github.com/jonathan/insight-pipeline/internal/types"
)

const stageName = "validator"

// SampleSize is the number of result rows shown to the judge
const SampleSize = 5

// Input is the read-only view of pipeline state the judge needs
type Input struct {
	Query string
	Plan  *types.Plan
	Table *types.Table
}

// Result carries the verdict and the judge's raw reply
type Result struct {
	Verdict types.Verdict
	Raw     string
	Logs    []string
	Err     error
}

// Stage is the validation stage
type Stage struct {
	client llm.Client
	logger *slog.Logger
}

// NewStage creates a validation stage backed by client
func NewStage(client llm.Client, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{client: client, logger: logger}
}

// Run judges the result. Any failure resolves to NotValid.
func (s *Stage) Run(ctx context.Context, in Input) Result {
	if in.Plan == nil {
		return s.notValid(&types.PreconditionError{Stage: stageName, Field: "plan"})
	}
	if in.Table == nil {
		return s.notValid(&types.PreconditionError{Stage: stageName, Field: "result_table"})
	}

	planJSON, err := json.MarshalIndent(in.Plan, "", "  ")
	if err != nil {
		return s.notValid(&Error{Message: "failed to marshal plan", Cause: err})
	}

	prompt, err := prompts.Render("validation.json", "judge-result", map[string]string{
		"Query":      in.Query,
		"Plan":       string(planJSON),
		"SampleSize": strconv.Itoa(min(SampleSize, in.Table.Len())),
		"RowCount":   strconv.Itoa(in.Table.Len()),
		"Sample":     in.Table.SampleJSON(SampleSize),
	})
	if err != nil {
		return s.notValid(&Error{Message: "failed to build prompt", Cause: err})
	}

	raw, err := s.client.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		return s.notValid(&Error{Message: "judge call failed", Cause: err})
	}

	verdict := ParseVerdict(raw)
	s.logger.Debug("validator verdict", "verdict", verdict.String(), "raw", raw)
	return Result{
		Verdict: verdict,
		Raw:     raw,
		Logs:    []string{verdictLine(verdict)},
	}
}

func (s *Stage) notValid(err error) Result {
	s.logger.Warn("validation short-circuited", "error", err)
	return Result{
		Verdict: types.VerdictNotValid,
		Logs: []string{
			fmt.Sprintf("Validator Agent Error: %v", err),
			verdictLine(types.VerdictNotValid),
		},
		Err: err,
	}
}

func verdictLine(v types.Verdict) string {
	return "Validator Agent: validation result -> " + v.String()
}
