package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/llm/llmtest"
	"github.com/jonathan/insight-pipeline/internal/types"
)

func resultTable(rows int) *types.Table {
	t := types.NewTable("region", "sum_sales")
	for i := 0; i < rows; i++ {
		t.Rows = append(t.Rows, []any{"r" + string(rune('a'+i)), int64(i)})
	}
	return t
}

func TestStage_Valid(t *testing.T) {
	mock := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("valid")}
	stage := NewStage(mock, nil)

	res := stage.Run(context.Background(), Input{
		Query: "total sales by region",
		Plan:  &types.Plan{GroupBy: []string{"region"}},
		Table: resultTable(8),
	})

	require.NoError(t, res.Err)
	assert.Equal(t, types.VerdictValid, res.Verdict)
	assert.Equal(t, []string{"Validator Agent: validation result -> valid"}, res.Logs)

	prompt := mock.LastPrompt()
	assert.Contains(t, prompt, "total sales by region")
	assert.Contains(t, prompt, `"ra"`)
	assert.Contains(t, prompt, `"re"`)
	assert.NotContains(t, prompt, `"rf"`, "only five rows are sampled")
	assert.Contains(t, prompt, "8 rows total")
}

func TestStage_NotValid(t *testing.T) {
	mock := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("not valid")}
	res := NewStage(mock, nil).Run(context.Background(), Input{Query: "q", Plan: &types.Plan{}, Table: resultTable(2)})

	require.NoError(t, res.Err)
	assert.Equal(t, types.VerdictNotValid, res.Verdict)
	assert.Equal(t, "not valid", res.Raw)
}

func TestStage_Preconditions(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"nil plan", Input{Query: "q", Table: resultTable(1)}, "plan"},
		{"nil table", Input{Query: "q", Plan: &types.Plan{}}, "result_table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("valid")}
			res := NewStage(mock, nil).Run(context.Background(), tt.in)

			assert.Equal(t, types.VerdictNotValid, res.Verdict)
			var precondition *types.PreconditionError
			require.True(t, errors.As(res.Err, &precondition))
			assert.Equal(t, tt.field, precondition.Field)
			assert.Equal(t, 0, mock.Calls())
			assert.Equal(t, "Validator Agent: validation result -> not valid", res.Logs[len(res.Logs)-1])
		})
	}
}

func TestStage_DelegateErrorIsNotValid(t *testing.T) {
	mock := &llmtest.MockClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "", llm.ErrTimeout
		},
	}
	res := NewStage(mock, nil).Run(context.Background(), Input{Query: "q", Plan: &types.Plan{}, Table: resultTable(1)})

	assert.Equal(t, types.VerdictNotValid, res.Verdict)
	assert.ErrorIs(t, res.Err, llm.ErrTimeout)
}

func TestStage_EmptyTableStillJudged(t *testing.T) {
	mock := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("valid")}
	res := NewStage(mock, nil).Run(context.Background(), Input{Query: "q", Plan: &types.Plan{}, Table: resultTable(0)})

	assert.Equal(t, types.VerdictValid, res.Verdict)
	assert.Equal(t, 1, mock.Calls())
}
