// Package planning turns a natural-language question and dataset metadata
// into a structured query plan. It always returns a usable plan: delegate
// failures produce a conservative low-confidence fallback.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/prompts"
	"github.com/jonathan/insight-pipeline/internal/schemas"
	"github.com/jonathan/insight-pipeline/internal/types"
)

const stageName = "planner"

// MetadataSamples is the number of sample values per column shown to the delegate
const MetadataSamples = 5

// NonJSONHint is the hint placed on a fallback plan built from unparseable output
const NonJSONHint = "Model returned non-JSON; inspect raw_model_output for details"

// Input is the read-only view of pipeline state the planner needs
type Input struct {
	Query    string
	Metadata types.Metadata
	Attempt  int // 1-based; attempts after the first tell the delegate to reconsider
}

// Result is the planner's contribution to pipeline state
type Result struct {
	Plan    *types.Plan
	Outcome llm.Outcome
	Logs    []string
	Err     error // Diagnostic only; Plan is always set
}

// Stage is the planning stage
type Stage struct {
	client llm.Client
	logger *slog.Logger
}

// NewStage creates a planning stage backed by client
func NewStage(client llm.Client, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{client: client, logger: logger}
}

// Run produces a plan for the query
func (s *Stage) Run(ctx context.Context, in Input) Result {
	if in.Query == "" || len(in.Metadata) == 0 {
		err := &types.PreconditionError{Stage: stageName, Field: "user_query/metadata"}
		return s.fallback(in, "missing metadata or user_query", "Planner: missing metadata or user_query.", "", err)
	}

	prompt, err := buildPrompt(in)
	if err != nil {
		return s.fallback(in, err.Error(), fmt.Sprintf("Planner error: %v", err), "", err)
	}

	raw, err := s.client.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return s.fallback(in, "Delegate error: "+err.Error(), fmt.Sprintf("Planner error: %v", err), "", err)
	}

	plan, outcome, err := ParsePlan(raw)
	if err != nil {
		return s.fallback(in, NonJSONHint, "Planner: model output is not a valid plan; using fallback plan.", raw, err)
	}

	s.logger.Debug("plan decoded", "outcome", outcome.String(), "plan_id", plan.PlanID)
	return Result{
		Plan:    plan,
		Outcome: outcome,
		Logs:    []string{confidenceLine(plan)},
	}
}

// ParsePlan decodes and structurally checks a delegate plan document.
// The returned plan is normalized.
func ParsePlan(raw string) (*types.Plan, llm.Outcome, error) {
	doc, outcome, err := llm.DecodeJSON[json.RawMessage](stageName, raw)
	if err != nil {
		return nil, llm.OutcomeMalformed, err
	}
	if err := schemas.ValidatePlanDocument(doc); err != nil {
		later, ok := findPlanDocument(raw)
		if !ok {
			return nil, llm.OutcomeMalformed, &types.DelegateFormatError{Stage: stageName, Raw: raw, Cause: err}
		}
		doc, outcome = later, llm.OutcomeRecoverable
	}

	var plan types.Plan
	if err := json.Unmarshal(doc, &plan); err != nil {
		return nil, llm.OutcomeMalformed, &types.DelegateFormatError{Stage: stageName, Raw: raw, Cause: err}
	}
	plan.Normalize()
	if err := plan.Validate(); err != nil {
		return nil, llm.OutcomeMalformed, &types.DelegateFormatError{Stage: stageName, Raw: raw, Cause: err}
	}
	plan.RawModelOutput = ""
	return &plan, outcome, nil
}

// findPlanDocument returns the first top-level object in raw that passes the
// plan schema, skipping example or note objects the delegate put before it
func findPlanDocument(raw string) (json.RawMessage, bool) {
	rest := raw
	for {
		start := strings.Index(rest, "{")
		if start < 0 {
			return nil, false
		}
		span := llm.ExtractJSONObject(rest[start:])
		if span == "" {
			return nil, false
		}
		if schemas.ValidatePlanDocument([]byte(span)) == nil {
			return json.RawMessage(span), true
		}
		rest = rest[start+len(span):]
	}
}

// fallback builds the low-confidence plan; hint lands in plan.Hints and
// logLine in the audit trail.
func (s *Stage) fallback(in Input, hint, logLine, raw string, cause error) Result {
	plan := types.FallbackPlan(in.Metadata, hint, raw)
	s.logger.Warn("planner fell back to default plan", "hint", hint, "error", cause)
	return Result{
		Plan:    plan,
		Outcome: llm.OutcomeMalformed,
		Logs:    []string{logLine, confidenceLine(plan)},
		Err:     cause,
	}
}

func buildPrompt(in Input) (string, error) {
	metadataJSON, err := json.MarshalIndent(in.Metadata.Trimmed(MetadataSamples), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	retryNote := ""
	if in.Attempt > 1 {
		retryNote, err = prompts.Render("planning.json", "retry-note", map[string]string{
			"Attempt": strconv.Itoa(in.Attempt - 1),
		})
		if err != nil {
			return "", err
		}
	}

	return prompts.Render("planning.json", "generate-plan", map[string]string{
		"Metadata":  string(metadataJSON),
		"Query":     in.Query,
		"RetryNote": retryNote,
	})
}

func confidenceLine(plan *types.Plan) string {
	return fmt.Sprintf("Planner: generated plan with confidence %.2f.", plan.ConfidenceValue())
}
