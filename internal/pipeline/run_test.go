package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/insight-pipeline/internal/insights"
	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/llm/llmtest"
	"github.com/jonathan/insight-pipeline/internal/planning"
	"github.com/jonathan/insight-pipeline/internal/querying"
	"github.com/jonathan/insight-pipeline/internal/store"
	"github.com/jonathan/insight-pipeline/internal/types"
	"github.com/jonathan/insight-pipeline/internal/validation"
)

type plannerFunc func(ctx context.Context, in planning.Input) planning.Result

func (f plannerFunc) Run(ctx context.Context, in planning.Input) planning.Result { return f(ctx, in) }

type querierFunc func(ctx context.Context, in querying.Input) querying.Result

func (f querierFunc) Run(ctx context.Context, in querying.Input) querying.Result { return f(ctx, in) }

type validatorFunc func(ctx context.Context, in validation.Input) validation.Result

func (f validatorFunc) Run(ctx context.Context, in validation.Input) validation.Result {
	return f(ctx, in)
}

type reporterFunc func(ctx context.Context, in insights.Input) insights.Result

func (f reporterFunc) Run(ctx context.Context, in insights.Input) insights.Result { return f(ctx, in) }

type artifact struct {
	Step     string
	Category string
}

type fakeRecorder struct {
	mu        sync.Mutex
	started   []uuid.UUID
	artifacts []artifact
	completed map[uuid.UUID]string
}

func (r *fakeRecorder) StartRun(_ context.Context, runID uuid.UUID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, runID)
	return nil
}

func (r *fakeRecorder) SaveArtifact(_ context.Context, _ uuid.UUID, step, category string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, artifact{Step: step, Category: category})
	return nil
}

func (r *fakeRecorder) CompleteRun(_ context.Context, runID uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed == nil {
		r.completed = map[uuid.UUID]string{}
	}
	r.completed[runID] = status
	return nil
}

func regionMetadata() types.Metadata {
	return types.Metadata{
		{Name: "region"},
		{Name: "sales"},
	}
}

func regionSales() *types.Table {
	return &types.Table{
		Columns: []string{"region", "sales"},
		Rows: [][]any{
			{"East", int64(100)},
			{"West", int64(50)},
			{"East", int64(25)},
		},
	}
}

const totalSalesPlan = `{
  "columns_to_use": ["region"],
  "filters": [],
  "aggregations": [{"type": "sum", "column": "sales"}],
  "group_by": ["region"],
  "order_by": [],
  "limit": null,
  "hints": [],
  "steps": ["sum sales per region"],
  "confidence": 0.9,
  "explain": "Group by region and sum sales."
}`

const chartOutput = `{
  "charts": [{"type": "bar", "x": "region", "y": "sum_sales", "title": "Sales by region"}],
  "insights": ["East leads sales.", "West trails East."]
}`

// realStages wires the production stages to per-stage mock delegates
func realStages(t *testing.T, planner, judge, reporter *llmtest.MockClient) Config {
	t.Helper()
	querier, err := querying.NewStage(querying.Config{Engine: store.EngineSQLite})
	require.NoError(t, err)
	return Config{
		Planner:   planning.NewStage(planner, nil),
		Querier:   querier,
		Validator: validation.NewStage(judge, nil),
		Reporter:  insights.NewStage(reporter, nil),
	}
}

func TestNew_RequiresStages(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	cfg := realStages(t, &llmtest.MockClient{}, &llmtest.MockClient{}, &llmtest.MockClient{})
	orch, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, orch.MaxRetries())
}

func TestRun_InvalidInput(t *testing.T) {
	orch, err := New(realStages(t, &llmtest.MockClient{}, &llmtest.MockClient{}, &llmtest.MockClient{}))
	require.NoError(t, err)

	tests := []struct {
		name  string
		input Input
	}{
		{name: "empty query", input: Input{Metadata: regionMetadata(), Source: regionSales()}},
		{name: "empty metadata", input: Input{Query: "total sales by region", Source: regionSales()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := orch.Run(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, st)
		})
	}
}

func TestRun_TotalSalesByRegion(t *testing.T) {
	planner := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(totalSalesPlan)}
	judge := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("valid")}
	reporter := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(chartOutput)}

	orch, err := New(realStages(t, planner, judge, reporter))
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{
		Query:    "total sales by region",
		Metadata: regionMetadata(),
		Source:   regionSales(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, st.Status)
	assert.Equal(t, PhaseDone, st.Phase)
	assert.Equal(t, 1, st.Attempts)

	require.NotNil(t, st.Plan)
	assert.Equal(t, []string{"region"}, st.Plan.GroupBy)
	assert.Equal(t, []types.Aggregation{{Type: "sum", Column: "sales"}}, st.Plan.Aggregations)

	assert.Equal(t, "SELECT region, SUM(sales) AS sum_sales FROM data GROUP BY region;", st.GeneratedQuery)
	require.NotNil(t, st.Table)
	assert.Equal(t, 2, st.Table.Len(), "one row per distinct region")

	require.NotNil(t, st.Verdict)
	assert.Equal(t, types.VerdictValid, *st.Verdict)
	require.NotNil(t, st.Route)
	assert.Equal(t, types.RouteToOutput, *st.Route)

	require.NotNil(t, st.Output)
	assert.Len(t, st.Output.Charts, 1)
	assert.Equal(t, []string{"East leads sales.", "West trails East."}, st.Output.Insights)

	assert.Contains(t, st.Logs[0], "Planner: generated plan with confidence 0.90")
	assert.Contains(t, st.Logs, "Validator Agent: validation result -> valid")
	assert.Len(t, st.Timings, 4)
}

func TestRun_EmptySourceRetriesUntilExhausted(t *testing.T) {
	planner := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(totalSalesPlan)}
	judge := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("valid")}
	reporter := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(chartOutput)}

	cfg := realStages(t, planner, judge, reporter)
	cfg.MaxRetries = 2
	orch, err := New(cfg)
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{
		Query:    "total sales by region",
		Metadata: regionMetadata(),
		Source:   types.NewTable("region", "sales"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusExhausted, st.Status)
	assert.Equal(t, 3, st.Attempts, "one initial attempt plus two retries")
	assert.Equal(t, 3, planner.Calls())
	assert.Equal(t, 0, judge.Calls(), "validator short-circuits without a result table")
	assert.Equal(t, 0, reporter.Calls())

	assert.Nil(t, st.Table)
	require.NotNil(t, st.Verdict)
	assert.Equal(t, types.VerdictNotValid, *st.Verdict)
	require.NotNil(t, st.Route)
	assert.Equal(t, types.RouteToPlanner, *st.Route)

	require.NotNil(t, st.Output)
	assert.Empty(t, st.Output.Charts)
	require.Len(t, st.Output.Insights, 1)
	assert.Contains(t, st.Output.Insights[0], "3 attempts")
	assert.Contains(t, st.Logs[len(st.Logs)-1], "retries exhausted")
}

func TestRun_MalformedPlanUsesFallback(t *testing.T) {
	planner := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond("I think you should sum the sales column")}
	judge := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("valid")}
	reporter := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(chartOutput)}

	orch, err := New(realStages(t, planner, judge, reporter))
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{
		Query:    "total sales by region",
		Metadata: regionMetadata(),
		Source:   regionSales(),
	})
	require.NoError(t, err)

	require.NotNil(t, st.Plan)
	assert.Less(t, st.Plan.ConfidenceValue(), types.LowTrustThreshold)
	assert.Contains(t, st.Plan.Hints, planning.NonJSONHint)
	assert.Equal(t, []string{"region", "sales"}, st.Plan.ColumnsToUse)

	assert.Equal(t, "SELECT region, sales FROM data;", st.GeneratedQuery)
	assert.Equal(t, 3, st.Table.Len())
	assert.Equal(t, StatusSucceeded, st.Status)
}

func TestRun_RetryReplacesPlanAndClearsArtifacts(t *testing.T) {
	var plannerInputs []planning.Input
	var querierPlans []*types.Plan
	var validatorTables []*types.Table

	plans := []*types.Plan{
		{PlanID: "first", ColumnsToUse: []string{"region"}},
		{PlanID: "second", ColumnsToUse: []string{"region", "sales"}},
	}
	tables := []*types.Table{
		{Columns: []string{"region"}, Rows: [][]any{{"East"}}},
		regionSales(),
	}

	cfg := Config{
		Planner: plannerFunc(func(_ context.Context, in planning.Input) planning.Result {
			plannerInputs = append(plannerInputs, in)
			return planning.Result{Plan: plans[in.Attempt-1], Logs: []string{"plan"}}
		}),
		Querier: querierFunc(func(_ context.Context, in querying.Input) querying.Result {
			querierPlans = append(querierPlans, in.Plan)
			return querying.Result{Query: "SELECT " + in.Plan.PlanID, Table: tables[len(querierPlans)-1]}
		}),
		Validator: validatorFunc(func(_ context.Context, in validation.Input) validation.Result {
			validatorTables = append(validatorTables, in.Table)
			if in.Plan.PlanID == "first" {
				return validation.Result{Verdict: types.VerdictNotValid}
			}
			return validation.Result{Verdict: types.VerdictValid}
		}),
		Reporter: reporterFunc(func(_ context.Context, in insights.Input) insights.Result {
			assert.Same(t, tables[1], in.Table, "output reads the table of the live plan")
			return insights.Result{Output: &types.Output{Charts: []types.Chart{}, Insights: []string{"ok"}}}
		}),
	}

	orch, err := New(cfg)
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{Query: "q", Metadata: regionMetadata(), Source: regionSales()})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, st.Status)
	assert.Equal(t, 2, st.Attempts)
	require.Len(t, plannerInputs, 2)
	assert.Equal(t, 1, plannerInputs[0].Attempt)
	assert.Equal(t, 2, plannerInputs[1].Attempt)

	require.Len(t, querierPlans, 2)
	assert.Same(t, plans[0], querierPlans[0])
	assert.Same(t, plans[1], querierPlans[1], "query stage sees the replacement plan")
	require.Len(t, validatorTables, 2)
	assert.Same(t, tables[1], validatorTables[1])

	assert.Same(t, plans[1], st.Plan)
	assert.Equal(t, "SELECT second", st.GeneratedQuery)
	assert.Contains(t, st.Logs, "Orchestrator: result not valid; returning to planner (retry 1 of 3).")
}

func TestRun_FailedQueryDoesNotLeakPreviousTable(t *testing.T) {
	attempt := 0
	var seen []*types.Table

	cfg := Config{
		MaxRetries: 1,
		Planner: plannerFunc(func(_ context.Context, in planning.Input) planning.Result {
			return planning.Result{Plan: &types.Plan{PlanID: "p"}}
		}),
		Querier: querierFunc(func(_ context.Context, in querying.Input) querying.Result {
			attempt++
			if attempt == 1 {
				return querying.Result{Query: "SELECT 1", Table: regionSales()}
			}
			return querying.Result{Query: "SELECT broken", Err: &types.ExecutionError{Query: "SELECT broken"}}
		}),
		Validator: validatorFunc(func(_ context.Context, in validation.Input) validation.Result {
			seen = append(seen, in.Table)
			return validation.Result{Verdict: types.VerdictNotValid}
		}),
		Reporter: reporterFunc(func(_ context.Context, in insights.Input) insights.Result {
			t.Fatal("reporter must not run")
			return insights.Result{}
		}),
	}

	orch, err := New(cfg)
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{Query: "q", Metadata: regionMetadata(), Source: regionSales()})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.NotNil(t, seen[0])
	assert.Nil(t, seen[1], "a failed query leaves no table from the earlier pass")
	assert.Nil(t, st.Table)
	assert.Equal(t, StatusExhausted, st.Status)
}

func TestRun_OutputPreconditionFailure(t *testing.T) {
	reporter := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(chartOutput)}
	cfg := Config{
		Planner: plannerFunc(func(_ context.Context, in planning.Input) planning.Result {
			return planning.Result{Plan: &types.Plan{PlanID: "p"}}
		}),
		Querier: querierFunc(func(_ context.Context, in querying.Input) querying.Result {
			return querying.Result{Query: "SELECT 1 WHERE 0", Table: types.NewTable("x")}
		}),
		Validator: validatorFunc(func(_ context.Context, in validation.Input) validation.Result {
			return validation.Result{Verdict: types.VerdictValid}
		}),
		Reporter: insights.NewStage(reporter, nil),
	}

	orch, err := New(cfg)
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{Query: "q", Metadata: regionMetadata(), Source: regionSales()})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, st.Status)
	assert.Nil(t, st.Output)
	assert.Equal(t, 1, st.Attempts, "no retry is defined from the output stage")
	assert.Equal(t, 0, reporter.Calls())
}

func TestRun_CancelledContext(t *testing.T) {
	planner := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(totalSalesPlan)}
	orch, err := New(realStages(t, planner, &llmtest.MockClient{}, &llmtest.MockClient{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := orch.Run(ctx, Input{Query: "q", Metadata: regionMetadata(), Source: regionSales()})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, st)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, 0, planner.Calls())
}

func TestRun_TimingsProgressAndRecorder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	recorder := &fakeRecorder{}
	var events []ProgressEvent

	cfg := Config{
		Clock:    clock,
		Recorder: recorder,
		OnProgress: func(event ProgressEvent) {
			events = append(events, event)
		},
		Planner: plannerFunc(func(_ context.Context, in planning.Input) planning.Result {
			clock.Advance(2 * time.Second)
			return planning.Result{Plan: &types.Plan{PlanID: "p"}, Outcome: llm.OutcomeWellFormed}
		}),
		Querier: querierFunc(func(_ context.Context, in querying.Input) querying.Result {
			clock.Advance(500 * time.Millisecond)
			return querying.Result{Query: "SELECT 1", Table: regionSales()}
		}),
		Validator: validatorFunc(func(_ context.Context, in validation.Input) validation.Result {
			return validation.Result{Verdict: types.VerdictValid, Raw: "valid"}
		}),
		Reporter: reporterFunc(func(_ context.Context, in insights.Input) insights.Result {
			return insights.Result{Output: &types.Output{Charts: []types.Chart{}, Insights: []string{"ok"}}}
		}),
	}

	orch, err := New(cfg)
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{Query: "q", Metadata: regionMetadata(), Source: regionSales()})
	require.NoError(t, err)

	require.Len(t, st.Timings, 4)
	assert.Equal(t, StageTiming{Step: "plan", Attempt: 1, Duration: 2 * time.Second}, st.Timings[0])
	assert.Equal(t, StageTiming{Step: "query", Attempt: 1, Duration: 500 * time.Millisecond}, st.Timings[1])
	assert.Equal(t, time.Duration(0), st.Timings[2].Duration)

	var stepsSeen []string
	for _, ev := range events {
		stepsSeen = append(stepsSeen, ev.Step)
		assert.Equal(t, st.RunID.String(), ev.RunID)
	}
	assert.Equal(t, []string{"plan", "query", "validate", "output", "done"}, stepsSeen)

	assert.Equal(t, []uuid.UUID{st.RunID}, recorder.started)
	assert.Equal(t, "succeeded", recorder.completed[st.RunID])
	assert.Equal(t, []artifact{
		{Step: "plan_attempt_1", Category: "planning"},
		{Step: "query_attempt_1", Category: "querying"},
		{Step: "validate_attempt_1", Category: "validation"},
		{Step: "output_attempt_1", Category: "output"},
		{Step: "logs", Category: "output"},
	}, recorder.artifacts)
}

func TestRouteFor(t *testing.T) {
	assert.Equal(t, types.RouteToOutput, routeFor(types.VerdictValid))
	assert.Equal(t, types.RouteToPlanner, routeFor(types.VerdictNotValid))
}

func TestExhaustedOutput(t *testing.T) {
	out := exhaustedOutput(4)
	assert.NotNil(t, out.Charts)
	assert.Empty(t, out.Charts)
	require.Len(t, out.Insights, 1)
	assert.Contains(t, out.Insights[0], "4 attempts")
}

func TestRecorderErrorsDoNotStopRun(t *testing.T) {
	cfg := Config{
		Recorder: failingRecorder{},
		Planner: plannerFunc(func(_ context.Context, in planning.Input) planning.Result {
			return planning.Result{Plan: &types.Plan{PlanID: "p"}}
		}),
		Querier: querierFunc(func(_ context.Context, in querying.Input) querying.Result {
			return querying.Result{Query: "SELECT 1", Table: regionSales()}
		}),
		Validator: validatorFunc(func(_ context.Context, in validation.Input) validation.Result {
			return validation.Result{Verdict: types.VerdictValid}
		}),
		Reporter: reporterFunc(func(_ context.Context, in insights.Input) insights.Result {
			return insights.Result{Output: &types.Output{Charts: []types.Chart{}, Insights: []string{"ok"}}}
		}),
	}
	orch, err := New(cfg)
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), Input{Query: "q", Metadata: regionMetadata(), Source: regionSales()})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, st.Status)
}

type failingRecorder struct{}

func (failingRecorder) StartRun(context.Context, uuid.UUID, string) error {
	return errors.New("db down")
}

func (failingRecorder) SaveArtifact(context.Context, uuid.UUID, string, string, any) error {
	return errors.New("db down")
}

func (failingRecorder) CompleteRun(context.Context, uuid.UUID, string) error {
	return errors.New("db down")
}
