package querying

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/insight-pipeline/internal/llm/llmtest"
	"github.com/jonathan/insight-pipeline/internal/store"
	"github.com/jonathan/insight-pipeline/internal/types"
)

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

func sumByRegion() *types.Plan {
	return &types.Plan{
		ColumnsToUse: []string{"region"},
		Aggregations: []types.Aggregation{{Type: "sum", Column: "sales"}},
		GroupBy:      []string{"region"},
	}
}

func newTemplateStage(t *testing.T) *Stage {
	t.Helper()
	stage, err := NewStage(Config{Engine: store.EngineSQLite})
	require.NoError(t, err)
	return stage
}

func TestStage_TotalSalesByRegion(t *testing.T) {
	stage := newTemplateStage(t)

	res := stage.Run(context.Background(), Input{Plan: sumByRegion(), Source: regionSales()})

	require.NoError(t, res.Err)
	assert.Equal(t, "SELECT region, SUM(sales) AS sum_sales FROM data GROUP BY region;", res.Query)
	require.NotNil(t, res.Table)
	assert.Equal(t, []string{"region", "sum_sales"}, res.Table.Columns)
	assert.Equal(t, 2, res.Table.Len(), "one row per distinct region")

	totals := map[any]any{}
	for _, row := range res.Table.Rows {
		totals[row[0]] = row[1]
	}
	assert.Equal(t, map[any]any{"East": int64(125), "West": int64(50)}, totals)

	require.Len(t, res.Logs, 3)
	assert.Contains(t, res.Logs[1], "SQL Agent: Generated SQL query:")
	assert.Equal(t, "SQL Agent: Query executed successfully. Retrieved 2 rows.", res.Logs[2])
}

func TestStage_Idempotent(t *testing.T) {
	stage := newTemplateStage(t)
	in := Input{
		Plan: &types.Plan{
			ColumnsToUse: []string{"region", "sales"},
			OrderBy:      []types.OrderBy{{Column: "sales"}},
		},
		Source: regionSales(),
	}

	first := stage.Run(context.Background(), in)
	second := stage.Run(context.Background(), in)

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.Query, second.Query)
	assert.Equal(t, first.Table, second.Table)
}

func TestStage_Preconditions(t *testing.T) {
	stage := newTemplateStage(t)

	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"nil source", Input{Plan: sumByRegion()}, "source_table"},
		{"empty source", Input{Plan: sumByRegion(), Source: types.NewTable("region", "sales")}, "source_table"},
		{"nil plan", Input{Source: regionSales()}, "plan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := stage.Run(context.Background(), tt.in)

			require.Error(t, res.Err)
			var precondition *types.PreconditionError
			require.True(t, errors.As(res.Err, &precondition))
			assert.Equal(t, tt.field, precondition.Field)
			assert.Nil(t, res.Table)
			assert.Empty(t, res.Query)
			require.Len(t, res.Logs, 1)
			assert.Contains(t, res.Logs[0], "SQL Agent Error:")
		})
	}
}

func TestStage_ExecutionError(t *testing.T) {
	stage := newTemplateStage(t)
	plan := &types.Plan{ColumnsToUse: []string{"revenue"}}

	res := stage.Run(context.Background(), Input{Plan: plan, Source: regionSales()})

	require.Error(t, res.Err)
	var execErr *types.ExecutionError
	require.True(t, errors.As(res.Err, &execErr))
	assert.Equal(t, "SELECT revenue FROM data;", execErr.Query)
	assert.Nil(t, res.Table)
	assert.Contains(t, res.Logs[len(res.Logs)-1], "SQL Agent Error:")
}

func TestStage_CompileErrorSurfacesAsExecutionError(t *testing.T) {
	stage := newTemplateStage(t)
	plan := &types.Plan{Filters: []types.Filter{{Column: "sales", Operator: "between", Value: []any{float64(1)}}}}

	res := stage.Run(context.Background(), Input{Plan: plan, Source: regionSales()})

	var execErr *types.ExecutionError
	require.True(t, errors.As(res.Err, &execErr))
	var compileErr *CompileError
	assert.True(t, errors.As(res.Err, &compileErr))
	assert.Nil(t, res.Table)
}

func TestStage_DelegateStrategy(t *testing.T) {
	mock := &llmtest.MockClient{
		GenerateContentFunc: llmtest.Respond("```sql\nSELECT region FROM data ORDER BY region\n```"),
	}
	stage, err := NewStage(Config{Strategy: StrategyDelegate, Client: mock})
	require.NoError(t, err)

	res := stage.Run(context.Background(), Input{Plan: sumByRegion(), Source: regionSales()})

	require.NoError(t, res.Err)
	assert.Equal(t, "SELECT region FROM data ORDER BY region;", res.Query)
	regions := make([]string, 0, res.Table.Len())
	for _, v := range res.Table.Column("region") {
		regions = append(regions, v.(string))
	}
	assert.True(t, sort.StringsAreSorted(regions))
	assert.Equal(t, 3, res.Table.Len())
}

func TestStage_DelegateMalformed(t *testing.T) {
	mock := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("sorry")}
	stage, err := NewStage(Config{Strategy: StrategyDelegate, Client: mock})
	require.NoError(t, err)

	res := stage.Run(context.Background(), Input{Plan: sumByRegion(), Source: regionSales()})

	var formatErr *types.DelegateFormatError
	require.True(t, errors.As(res.Err, &formatErr))
	assert.Nil(t, res.Table)
}

func TestNewStage_DelegateRequiresClient(t *testing.T) {
	_, err := NewStage(Config{Strategy: StrategyDelegate})
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyTemplate, s)

	s, err = ParseStrategy("Delegate")
	require.NoError(t, err)
	assert.Equal(t, StrategyDelegate, s)

	_, err = ParseStrategy("magic")
	assert.Error(t, err)
}
