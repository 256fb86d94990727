package types

import "encoding/json"

// Table is a rows x named-columns tabular value. Cells hold nil, bool,
// int64, float64 or string.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTable creates an empty table with the given columns
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns, Rows: [][]any{}}
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table is nil, has no columns or has no rows
func (t *Table) Empty() bool {
	return t == nil || len(t.Columns) == 0 || len(t.Rows) == 0
}

// Head returns a table holding at most the first n rows
func (t *Table) Head(n int) *Table {
	if t == nil {
		return nil
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// ColumnIndex returns the index of a column, or -1 if absent
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Column returns all values of a column, or nil if the column is absent
func (t *Table) Column(name string) []any {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values
}

// Records returns the rows as column-keyed maps, the shape used in prompts
func (t *Table) Records() []map[string]any {
	if t == nil {
		return []map[string]any{}
	}
	records := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				record[col] = row[i]
			} else {
				record[col] = nil
			}
		}
		records = append(records, record)
	}
	return records
}

// SampleJSON renders the first n rows as indented JSON records for prompts
func (t *Table) SampleJSON(n int) string {
	data, err := json.MarshalIndent(t.Head(n).Records(), "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
