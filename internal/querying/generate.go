package querying

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/prompts"
	"github.com/jonathan/insight-pipeline/internal/types"
)

const stageName = "query"

// generateResponse is the JSON shape the SQL prompt asks for
type generateResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
}

// GenerateSQL asks the delegate to write SQL for plan given the column names
// and a small sample of the source table. The reply must be a single
// read-only statement.
func GenerateSQL(ctx context.Context, client llm.Client, plan *types.Plan, source *types.Table, dialect string, sampleSize int) (string, error) {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}

	prompt, err := prompts.Render("query.json", "generate-sql", map[string]string{
		"Dialect":    dialect,
		"Table":      TableName,
		"Columns":    strings.Join(source.Columns, ", "),
		"SampleSize": strconv.Itoa(sampleSize),
		"Sample":     source.SampleJSON(sampleSize),
		"Plan":       string(planJSON),
	})
	if err != nil {
		return "", err
	}

	raw, err := client.GenerateContent(ctx, prompt, llm.TierStandard)
	if err != nil {
		return "", fmt.Errorf("SQL generation failed: %w", err)
	}

	sql, err := parseGenerateResponse(raw)
	if err != nil {
		return "", &types.DelegateFormatError{Stage: stageName, Raw: raw, Cause: err}
	}
	return sql, nil
}

// parseGenerateResponse extracts SQL from a JSON reply, a fenced code block
// or bare SQL text, in that order.
func parseGenerateResponse(response string) (string, error) {
	response = strings.TrimSpace(response)

	if parsed, outcome, err := llm.DecodeJSON[generateResponse](stageName, response); err == nil && outcome != llm.OutcomeMalformed && parsed.SQL != "" {
		return checkReadOnly(parsed.SQL)
	}

	if sql := extractSQLFromCodeBlocks(response); sql != "" {
		return checkReadOnly(sql)
	}

	if looksLikeSQL(response) {
		return checkReadOnly(response)
	}

	return "", fmt.Errorf("could not extract SQL from response")
}

// extractSQLFromCodeBlocks finds SQL in markdown code blocks
func extractSQLFromCodeBlocks(response string) string {
	if start := strings.Index(response, "```sql"); start != -1 {
		start += len("```sql")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if looksLikeSQL(content) {
				return content
			}
		}
	}

	return ""
}

// looksLikeSQL checks if text starts like a read query
func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// checkReadOnly normalizes a generated statement and rejects anything but a
// single SELECT or WITH query.
func checkReadOnly(sql string) (string, error) {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimRight(sql, "; \n\t")
	if !looksLikeSQL(sql) {
		return "", fmt.Errorf("generated SQL must start with SELECT or WITH")
	}
	if strings.Contains(sql, ";") {
		return "", fmt.Errorf("generated SQL must be a single statement")
	}
	return sql + ";", nil
}
