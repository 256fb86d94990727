package querying

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

func TestParseGenerateResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "json",
			input: `{"sql": "SELECT region FROM data", "explanation": "regions"}`,
			want:  "SELECT region FROM data;",
		},
		{
			name:  "json in fence",
			input: "```json\n{\"sql\": \"SELECT 1;\"}\n```",
			want:  "SELECT 1;",
		},
		{
			name:  "sql fence",
			input: "Here you go:\n```sql\nSELECT region, SUM(sales) FROM data GROUP BY region\n```",
			want:  "SELECT region, SUM(sales) FROM data GROUP BY region;",
		},
		{
			name:  "generic fence",
			input: "```\nWITH t AS (SELECT 1 AS x) SELECT x FROM t\n```",
			want:  "WITH t AS (SELECT 1 AS x) SELECT x FROM t;",
		},
		{
			name:  "bare sql",
			input: "select * from data;",
			want:  "select * from data;",
		},
		{
			name:    "prose",
			input:   "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "write statement",
			input:   `{"sql": "DELETE FROM data"}`,
			wantErr: true,
		},
		{
			name:    "stacked statements",
			input:   "SELECT 1; DROP TABLE data;",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGenerateResponse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateSQL_PromptContents(t *testing.T) {
	mock := &llmtest.MockClient{
		GenerateContentFunc: llmtest.Respond(`{"sql": "SELECT region FROM data"}`),
	}
	source := &types.Table{
		Columns: []string{"region", "sales"},
		Rows:    [][]any{{"East", int64(1)}},
	}
	plan := &types.Plan{ColumnsToUse: []string{"region"}}

	sql, err := GenerateSQL(context.Background(), mock, plan, source, "SQLite", 5)
	require.NoError(t, err)
	assert.Equal(t, "SELECT region FROM data;", sql)

	prompt := mock.LastPrompt()
	assert.Contains(t, prompt, "SQLite")
	assert.Contains(t, prompt, "region, sales")
	assert.Contains(t, prompt, `"columns_to_use"`)
	assert.Contains(t, prompt, `"region": "East"`)
}

func TestGenerateSQL_Malformed(t *testing.T) {
	mock := &llmtest.MockClient{GenerateContentFunc: llmtest.Respond("no idea")}
	source := &types.Table{Columns: []string{"a"}, Rows: [][]any{{int64(1)}}}

	_, err := GenerateSQL(context.Background(), mock, &types.Plan{}, source, "SQLite", 5)
	require.Error(t, err)
	var formatErr *types.DelegateFormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, "no idea", formatErr.Raw)
}

func TestGenerateSQL_DelegateError(t *testing.T) {
	mock := &llmtest.MockClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "", errors.New("boom")
		},
	}
	source := &types.Table{Columns: []string{"a"}, Rows: [][]any{{int64(1)}}}

	_, err := GenerateSQL(context.Background(), mock, &types.Plan{}, source, "SQLite", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
