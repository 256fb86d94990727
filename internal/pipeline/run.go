// Package pipeline orchestrates one insight run: plan, query, validate, then
// either produce output or re-enter planning, with a bounded number of retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jonathan/insight-pipeline/internal/insights"
	"github.com/jonathan/insight-pipeline/internal/metrics"
	"github.com/jonathan/insight-pipeline/internal/pipeline/steps"
	"github.com/jonathan/insight-pipeline/internal/planning"
	"github.com/jonathan/insight-pipeline/internal/querying"
	"github.com/jonathan/insight-pipeline/internal/types"
	"github.com/jonathan/insight-pipeline/internal/validation"
)

// DefaultMaxRetries is the number of planner re-entries allowed per run
const DefaultMaxRetries = 3

// ErrInvalidInput is returned when a run is started without a query or metadata
var ErrInvalidInput = errors.New("pipeline: user query and metadata are required")

// Planner produces a plan
type Planner interface {
	Run(ctx context.Context, in planning.Input) planning.Result
}

// Querier builds and executes a query for a plan
type Querier interface {
	Run(ctx context.Context, in querying.Input) querying.Result
}

// Validator judges a result table
type Validator interface {
	Run(ctx context.Context, in validation.Input) validation.Result
}

// Reporter turns a result table into charts and insights
type Reporter interface {
	Run(ctx context.Context, in insights.Input) insights.Result
}

// Recorder persists run artifacts. Failures are logged and never stop a run.
type Recorder interface {
	StartRun(ctx context.Context, runID uuid.UUID, query string) error
	SaveArtifact(ctx context.Context, runID uuid.UUID, step, category string, content any) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status string) error
}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Config holds the orchestrator's collaborators
type Config struct {
	Logger     *slog.Logger
	Planner    Planner
	Querier    Querier
	Validator  Validator
	Reporter   Reporter
	MaxRetries int
	Recorder   Recorder // Optional
	Clock      clockwork.Clock
	OnProgress ProgressCallback
}

// Orchestrator runs the stage graph
type Orchestrator struct {
	cfg Config
}

// New validates the configuration and fills defaults
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Planner == nil || cfg.Querier == nil || cfg.Validator == nil || cfg.Reporter == nil {
		return nil, errors.New("pipeline: planner, querier, validator and reporter are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Orchestrator{cfg: cfg}, nil
}

// MaxRetries returns the effective retry cap
func (o *Orchestrator) MaxRetries() int {
	return o.cfg.MaxRetries
}

// Run executes one pipeline run. The returned state is non-nil whenever the
// input was accepted; the error is non-nil only for invalid input or a
// cancelled context.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*State, error) {
	if in.Query == "" || len(in.Metadata) == 0 {
		return nil, ErrInvalidInput
	}

	st := newState(in)
	log := o.cfg.Logger.With("run_id", st.RunID.String())

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	if o.cfg.Recorder != nil {
		if err := o.cfg.Recorder.StartRun(ctx, st.RunID, st.Query); err != nil {
			log.Warn("pipeline: failed to start run record", "error", err)
		}
	}
	log.Info("pipeline: run started", "query", st.Query, "columns", len(st.Metadata), "max_retries", o.cfg.MaxRetries)
	for _, f := range validation.ScanInput(st.Query, st.Metadata) {
		log.Warn("pipeline: instruction-like input", "source", f.Source, "match", f.Match)
	}

	for {
		st.Attempts++
		completed := map[string]bool{}

		for _, step := range []string{steps.Plan, steps.Query, steps.Validate} {
			if err := ctx.Err(); err != nil {
				return o.finish(ctx, log, st, StatusFailed), err
			}
			if err := steps.ValidateDependencies(completed, step); err != nil {
				return o.finish(ctx, log, st, StatusFailed), err
			}
			o.runStep(ctx, log, st, step)
			completed[step] = true
		}

		route := routeFor(*st.Verdict)
		st.Route = &route
		log.Info("pipeline: routing", "attempt", st.Attempts, "verdict", st.Verdict.String(), "route", route.String())

		switch route {
		case types.RouteToOutput:
			if err := steps.ValidateDependencies(completed, steps.Output); err != nil {
				return o.finish(ctx, log, st, StatusFailed), err
			}
			if err := ctx.Err(); err != nil {
				return o.finish(ctx, log, st, StatusFailed), err
			}
			o.runStep(ctx, log, st, steps.Output)
			if st.Output == nil {
				return o.finish(ctx, log, st, StatusFailed), nil
			}
			return o.finish(ctx, log, st, StatusSucceeded), nil

		case types.RouteToPlanner:
			retries := st.Attempts - 1
			if retries >= o.cfg.MaxRetries {
				st.Output = exhaustedOutput(st.Attempts)
				st.appendLogs(fmt.Sprintf("Orchestrator: retries exhausted after %d attempts; returning best-effort output.", st.Attempts))
				o.emit(st, "retries_exhausted", steps.CategoryOutput, "Retries exhausted", st.Output)
				return o.finish(ctx, log, st, StatusExhausted), nil
			}
			metrics.RetriesTotal.Inc()
			st.appendLogs(fmt.Sprintf("Orchestrator: result not valid; returning to planner (retry %d of %d).", retries+1, o.cfg.MaxRetries))
			o.emit(st, "retry", steps.CategoryPlanning, fmt.Sprintf("Retrying planner (%d of %d)", retries+1, o.cfg.MaxRetries), nil)
			st.resetPass()
			st.Phase = PhasePlanning
		}
	}
}

// routeFor maps every verdict to exactly one route
func routeFor(v types.Verdict) types.Route {
	switch v {
	case types.VerdictValid:
		return types.RouteToOutput
	case types.VerdictNotValid:
		return types.RouteToPlanner
	}
	return types.RouteToPlanner
}

// runStep invokes one stage and merges its delta into the state
func (o *Orchestrator) runStep(ctx context.Context, log *slog.Logger, st *State, step string) {
	start := o.cfg.Clock.Now()
	var (
		stageErr error
		content  any
		message  string
	)

	switch step {
	case steps.Plan:
		st.Phase = PhasePlanning
		res := o.cfg.Planner.Run(ctx, planning.Input{
			Query:    st.Query,
			Metadata: st.Metadata,
			Attempt:  st.Attempts,
		})
		st.Plan = res.Plan
		st.appendLogs(res.Logs...)
		stageErr = res.Err
		content = res.Plan
		message = fmt.Sprintf("Generated plan (%s)", res.Outcome)

	case steps.Query:
		st.Phase = PhaseQuerying
		res := o.cfg.Querier.Run(ctx, querying.Input{
			Plan:   st.Plan,
			Source: st.Source,
		})
		st.GeneratedQuery = res.Query
		st.Table = res.Table
		st.appendLogs(res.Logs...)
		stageErr = res.Err
		content = map[string]any{"query": res.Query, "rows": res.Table.Len()}
		message = fmt.Sprintf("Executed query (%d rows)", res.Table.Len())

	case steps.Validate:
		st.Phase = PhaseValidating
		res := o.cfg.Validator.Run(ctx, validation.Input{
			Query: st.Query,
			Plan:  st.Plan,
			Table: st.Table,
		})
		verdict := res.Verdict
		st.Verdict = &verdict
		st.appendLogs(res.Logs...)
		stageErr = res.Err
		content = map[string]any{"verdict": verdict.String(), "raw": res.Raw}
		message = fmt.Sprintf("Validation result: %s", verdict)
		metrics.VerdictsTotal.WithLabelValues(verdict.String()).Inc()

	case steps.Output:
		st.Phase = PhaseOutputting
		res := o.cfg.Reporter.Run(ctx, insights.Input{
			Query:    st.Query,
			Metadata: st.Metadata,
			Table:    st.Table,
		})
		st.Output = res.Output
		st.appendLogs(res.Logs...)
		stageErr = res.Err
		content = res.Output
		message = "Generated charts and insights"
	}

	elapsed := o.cfg.Clock.Since(start)
	st.Timings = append(st.Timings, StageTiming{Step: step, Attempt: st.Attempts, Duration: elapsed})
	metrics.ObserveStage(step, elapsed, stageErr != nil)

	if stageErr != nil {
		log.Warn("pipeline: stage reported error", "step", step, "attempt", st.Attempts, "error", stageErr)
	} else {
		log.Debug("pipeline: stage completed", "step", step, "attempt", st.Attempts, "elapsed", elapsed)
	}

	o.emit(st, step, steps.CategoryOf(step), message, content)
	o.save(ctx, log, st, artifactKey(step, st.Attempts), steps.CategoryOf(step), content)
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, st *State, status Status) *State {
	st.Status = status
	st.Phase = PhaseDone
	metrics.RunsTotal.WithLabelValues(string(status)).Inc()

	if o.cfg.Recorder != nil {
		// The run record is completed even when the caller's context is done
		recordCtx := context.WithoutCancel(ctx)
		o.save(recordCtx, log, st, "logs", steps.CategoryOutput, st.Logs)
		if err := o.cfg.Recorder.CompleteRun(recordCtx, st.RunID, string(status)); err != nil {
			log.Warn("pipeline: failed to complete run record", "error", err)
		}
	}

	o.emit(st, "done", steps.CategoryOutput, fmt.Sprintf("Run %s after %d attempt(s)", status, st.Attempts), st.Output)
	log.Info("pipeline: run finished", "status", status, "attempts", st.Attempts, "elapsed", totalDuration(st.Timings))
	return st
}

// emit calls the progress callback if configured
func (o *Orchestrator) emit(st *State, step, category, message string, content any) {
	if o.cfg.OnProgress != nil {
		o.cfg.OnProgress(ProgressEvent{
			Step:     step,
			Category: category,
			Message:  message,
			RunID:    st.RunID.String(),
			Attempt:  st.Attempts,
			Content:  content,
		})
	}
}

func (o *Orchestrator) save(ctx context.Context, log *slog.Logger, st *State, key, category string, content any) {
	if o.cfg.Recorder == nil {
		return
	}
	if err := o.cfg.Recorder.SaveArtifact(ctx, st.RunID, key, category, content); err != nil {
		log.Warn("pipeline: failed to save artifact", "step", key, "error", err)
	}
}

// artifactKey keeps one artifact per step and attempt
func artifactKey(step string, attempt int) string {
	return fmt.Sprintf("%s_attempt_%d", step, attempt)
}

func exhaustedOutput(attempts int) *types.Output {
	return &types.Output{
		Charts: []types.Chart{},
		Insights: []string{
			fmt.Sprintf("Could not produce a validated answer after %d attempts; the last result table is shown without insights.", attempts),
		},
	}
}

func totalDuration(timings []StageTiming) time.Duration {
	var total time.Duration
	for _, t := range timings {
		total += t.Duration
	}
	return total
}
