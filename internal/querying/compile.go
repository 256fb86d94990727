package querying

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/insight-pipeline/internal/types"
)

var bareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved words that must be quoted even when they look like identifiers
var reserved = map[string]bool{
	"all": true, "and": true, "as": true, "asc": true, "between": true, "by": true,
	"case": true, "check": true, "default": true, "desc": true, "distinct": true,
	"else": true, "end": true, "from": true, "group": true, "having": true,
	"in": true, "index": true, "is": true, "join": true, "key": true, "like": true,
	"limit": true, "not": true, "null": true, "on": true, "or": true, "order": true,
	"primary": true, "select": true, "table": true, "then": true, "union": true,
	"values": true, "when": true, "where": true, "with": true,
}

var aggregateFuncs = map[string]string{
	"sum":   "SUM",
	"avg":   "AVG",
	"count": "COUNT",
	"min":   "MIN",
	"max":   "MAX",
}

var comparisonOps = map[string]string{
	"=":  "=",
	"==": "=",
	"!=": "!=",
	"<>": "<>",
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
}

// Compile renders plan as a single SELECT against table.
// The plan is normalized on a copy first; the caller's plan is not modified.
// Compilation is deterministic: the same plan always yields the same SQL.
func Compile(plan *types.Plan, table string) (string, error) {
	if plan == nil {
		return "", &CompileError{Message: "plan is nil"}
	}
	p := plan.Clone()
	p.Normalize()
	if err := p.Validate(); err != nil {
		return "", &CompileError{Message: "plan is structurally invalid", Cause: err}
	}

	projection := make([]string, 0, len(p.ColumnsToUse)+len(p.Aggregations))
	for _, col := range p.ColumnsToUse {
		projection = append(projection, columnRef(col))
	}
	for _, agg := range p.Aggregations {
		expr, err := renderAggregation(agg)
		if err != nil {
			return "", err
		}
		projection = append(projection, expr)
	}
	if len(projection) == 0 {
		projection = append(projection, "*")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(table))

	if len(p.Filters) > 0 {
		conditions := make([]string, 0, len(p.Filters))
		for _, f := range p.Filters {
			cond, err := renderFilter(f)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, cond)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if len(p.GroupBy) > 0 {
		cols := make([]string, len(p.GroupBy))
		for i, col := range p.GroupBy {
			cols[i] = quoteIdent(col)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(cols, ", "))
	}

	if len(p.OrderBy) > 0 {
		terms := make([]string, len(p.OrderBy))
		for i, o := range p.OrderBy {
			direction := "ASC"
			if o.Direction == "desc" {
				direction = "DESC"
			}
			terms[i] = quoteIdent(o.Column) + " " + direction
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if p.Limit != nil && *p.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*p.Limit))
	}

	sb.WriteString(";")
	return sb.String(), nil
}

func renderAggregation(agg types.Aggregation) (string, error) {
	column := strings.TrimSpace(agg.Column)
	alias := agg.Alias
	if alias == "" {
		suffix := column
		if column == "" || column == "*" {
			suffix = "all"
		}
		alias = agg.Type + "_" + suffix
	}

	if agg.Type == "pct_change" {
		// Declared by the planner but not computed: the column passes through
		if column == "" || column == "*" {
			return "", &CompileError{Message: "pct_change requires a column"}
		}
		return quoteIdent(column) + " AS " + quoteIdent(alias), nil
	}

	fn, ok := aggregateFuncs[agg.Type]
	if !ok {
		return "", &CompileError{Message: fmt.Sprintf("unknown aggregation %q", agg.Type)}
	}
	if column == "" || column == "*" {
		if agg.Type != "count" {
			return "", &CompileError{Message: fmt.Sprintf("aggregation %s requires a column", agg.Type)}
		}
		return "COUNT(*) AS " + quoteIdent(alias), nil
	}
	return fmt.Sprintf("%s(%s) AS %s", fn, quoteIdent(column), quoteIdent(alias)), nil
}

func renderFilter(f types.Filter) (string, error) {
	col := quoteIdent(f.Column)
	op := f.Operator

	if items, isList := asList(f.Value); isList {
		switch op {
		case "between":
			if len(items) != 2 {
				return "", &CompileError{Message: fmt.Sprintf("between filter on %s needs exactly two values, got %d", f.Column, len(items))}
			}
			lo, err := literal(items[0])
			if err != nil {
				return "", err
			}
			hi, err := literal(items[1])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil
		case "not in", "!=", "<>":
			set, err := literalList(items)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s NOT IN %s", col, set), nil
		default:
			if _, known := comparisonOps[op]; !known && op != "in" && op != "like" && op != "contains" {
				return "", &CompileError{Message: fmt.Sprintf("unsupported operator %q", op)}
			}
			set, err := literalList(items)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s IN %s", col, set), nil
		}
	}

	if f.Value == nil {
		switch op {
		case "=", "==", "in":
			return col + " IS NULL", nil
		case "!=", "<>", "not in":
			return col + " IS NOT NULL", nil
		default:
			return "", &CompileError{Message: fmt.Sprintf("operator %q cannot compare %s with null", op, f.Column)}
		}
	}

	switch op {
	case "between":
		return "", &CompileError{Message: fmt.Sprintf("between filter on %s needs a two-item list", f.Column)}
	case "in", "not in":
		value, err := literal(f.Value)
		if err != nil {
			return "", err
		}
		keyword := "IN"
		if op == "not in" {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, keyword, value), nil
	case "like", "not like":
		value, err := literal(f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", col, strings.ToUpper(op), value), nil
	case "contains":
		if _, isMap := f.Value.(map[string]any); isMap {
			return "", &CompileError{Message: fmt.Sprintf("unsupported value for %s", f.Column)}
		}
		return fmt.Sprintf("%s LIKE %s", col, quoteString("%"+fmt.Sprint(f.Value)+"%")), nil
	}

	sqlOp, ok := comparisonOps[op]
	if !ok {
		return "", &CompileError{Message: fmt.Sprintf("unsupported operator %q", op)}
	}
	value, err := literal(f.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", col, sqlOp, value), nil
}

// asList reports whether v is a list value and returns its items
func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = item
		}
		return items, true
	case []int:
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = item
		}
		return items, true
	case []float64:
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = item
		}
		return items, true
	default:
		return nil, false
	}
}

func literalList(items []any) (string, error) {
	if len(items) == 0 {
		return "", &CompileError{Message: "empty value list"}
	}
	parts := make([]string, len(items))
	for i, item := range items {
		lit, err := literal(item)
		if err != nil {
			return "", err
		}
		parts[i] = lit
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// literal renders a scalar JSON value as SQL: strings quoted, numbers bare
func literal(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteString(val), nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", &CompileError{Message: fmt.Sprintf("non-finite number %v", val)}
		}
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10), nil
		}
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", &CompileError{Message: fmt.Sprintf("unsupported filter value of type %T", v)}
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// columnRef renders a projected column; "*" is kept bare
func columnRef(name string) string {
	if name == "*" {
		return name
	}
	return quoteIdent(name)
}

// quoteIdent leaves plain identifiers bare and double-quotes everything else
func quoteIdent(name string) string {
	if bareIdent.MatchString(name) && !reserved[strings.ToLower(name)] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
