package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// missingTokens are cell values read as missing
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
	"<NA>": true,
	"#N/A": true,
}

// ParseCell converts one raw cell into nil, bool, int64, float64 or string
func ParseCell(raw string) any {
	s := strings.TrimSpace(raw)
	if missingTokens[s] {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true", "True", "TRUE":
		return true
	case "false", "False", "FALSE":
		return false
	}
	return s
}

// buildRows parses raw records and makes each column's values consistent:
// a column holding any text keeps every non-missing cell as text, and a
// column mixing integers with floats becomes all floats.
func buildRows(records [][]string, width int) [][]any {
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, width)
		for j := 0; j < width && j < len(rec); j++ {
			row[j] = ParseCell(rec[j])
		}
		rows[i] = row
	}

	for col := 0; col < width; col++ {
		var hasText, hasFloat, hasInt, hasBool bool
		for _, row := range rows {
			switch row[col].(type) {
			case string:
				hasText = true
			case float64:
				hasFloat = true
			case int64:
				hasInt = true
			case bool:
				hasBool = true
			}
		}

		switch {
		case hasText || (hasBool && (hasInt || hasFloat)):
			for i, row := range rows {
				if row[col] != nil && col < len(records[i]) {
					row[col] = strings.TrimSpace(records[i][col])
				}
			}
		case hasFloat && hasInt:
			for _, row := range rows {
				if v, ok := row[col].(int64); ok {
					row[col] = float64(v)
				}
			}
		}
	}
	return rows
}

// uniqueHeaders fills blank names and de-duplicates repeated ones
func uniqueHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		headers[i] = name
	}
	return headers
}
