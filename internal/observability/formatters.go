// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"

	"github.com/jonathan/insight-pipeline/internal/pipeline"
	"github.com/jonathan/insight-pipeline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// maxCellWidth truncates long cells in result tables
	maxCellWidth = 32
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		for _, part := range wrapLine(line, boxWidth-4) {
			fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, part)
		}
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// printHeader prints a boxed title followed by unboxed content, for text
// that must be shown verbatim
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printHeader(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "└%s┘\n", border)
	fmt.Fprintln(p.out, content)
}

// wrapLine splits line into pieces of at most width runes, breaking at
// spaces where possible. Continuation pieces keep the line's indent and
// bullet so lists stay aligned.
func wrapLine(line string, width int) []string {
	if utf8.RuneCountInString(line) <= width {
		return []string{line}
	}

	trimmed := strings.TrimLeft(line, " ")
	lead := len(line) - len(trimmed)
	if lead > width/2 {
		lead = 0
	}
	indent := lead
	for _, bullet := range []string{"• ", "! ", "- "} {
		if strings.HasPrefix(trimmed, bullet) {
			indent += utf8.RuneCountInString(bullet)
			break
		}
	}
	if indent > width/2 {
		indent = lead
	}

	var out []string
	current := []rune(strings.Repeat(" ", lead))
	started := false
	flush := func() {
		out = append(out, string(current))
		current = []rune(strings.Repeat(" ", indent))
		started = false
	}

	for _, word := range strings.Fields(trimmed) {
		runes := []rune(word)
		need := len(runes)
		if started {
			need++
		}
		if started && len(current)+need > width {
			flush()
		}
		if started {
			current = append(current, ' ')
		}
		for len(current)+len(runes) > width {
			room := width - len(current)
			current = append(current, runes[:room]...)
			runes = runes[room:]
			flush()
		}
		current = append(current, runes...)
		started = true
	}
	if started || len(out) == 0 {
		out = append(out, string(current))
	}
	return out
}

// PrintDatasetSummary outputs the shape and column names of a loaded dataset.
func (p *Printer) PrintDatasetSummary(source string, table *types.Table) {
	if table == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Source:   %s\n", source))
	sb.WriteString(fmt.Sprintf("Rows:     %d\n", table.Len()))
	sb.WriteString(fmt.Sprintf("Columns:  %d\n", len(table.Columns)))
	sb.WriteString("\n")
	for _, col := range table.Columns {
		sb.WriteString(fmt.Sprintf("  • %s\n", col))
	}

	p.printBox("DATASET", strings.TrimSuffix(sb.String(), "\n"))
	p.PrintTable("PREVIEW", table, maxItemsToShow)
}

// PrintMetadata outputs the column descriptors as a table.
func (p *Printer) PrintMetadata(md types.Metadata) {
	if len(md) == 0 {
		return
	}

	rows := make([][]string, 0, len(md))
	for _, col := range md {
		samples := make([]string, 0, len(col.SampleValues))
		for _, v := range col.SampleValues {
			samples = append(samples, FormatCell(v))
		}
		rows = append(rows, []string{col.Name, col.DataType, truncate(strings.Join(samples, ", "), maxCellWidth), truncate(col.Description, 48)})
	}
	p.renderTable([]string{"Column", "Type", "Samples", "Description"}, rows)
}

// PrintPlan outputs a human-readable summary of a query plan.
func (p *Printer) PrintPlan(plan *types.Plan) {
	if plan == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Confidence: %.2f", plan.ConfidenceValue()))
	if plan.LowTrust() {
		sb.WriteString(" (low trust)")
	}
	sb.WriteString("\n")
	if len(plan.ColumnsToUse) > 0 {
		sb.WriteString(fmt.Sprintf("Columns:    %s\n", strings.Join(plan.ColumnsToUse, ", ")))
	}
	for _, agg := range plan.Aggregations {
		sb.WriteString(fmt.Sprintf("Aggregate:  %s(%s)\n", agg.Type, agg.Column))
	}
	for _, f := range plan.Filters {
		sb.WriteString(fmt.Sprintf("Filter:     %s %s %s\n", f.Column, f.Operator, FormatCell(f.Value)))
	}
	if len(plan.GroupBy) > 0 {
		sb.WriteString(fmt.Sprintf("Group by:   %s\n", strings.Join(plan.GroupBy, ", ")))
	}
	for _, o := range plan.OrderBy {
		sb.WriteString(fmt.Sprintf("Order by:   %s %s\n", o.Column, o.Direction))
	}
	if plan.Limit != nil {
		sb.WriteString(fmt.Sprintf("Limit:      %d\n", *plan.Limit))
	}
	if plan.Explain != "" {
		sb.WriteString("\n")
		sb.WriteString(plan.Explain)
		sb.WriteString("\n")
	}
	count := min(len(plan.Hints), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  ! %s\n", plan.Hints[i]))
	}

	p.printBox("QUERY PLAN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintQuery outputs the generated SQL.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintQuery(query string) {
	if query == "" {
		return
	}
	fmt.Fprintf(p.out, "\nSQL:\n  %s\n\n", strings.ReplaceAll(query, "\n", "\n  "))
}

// PrintTable renders up to maxRows rows of a table. maxRows <= 0 prints all rows.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintTable(title string, table *types.Table, maxRows int) {
	if table == nil || len(table.Columns) == 0 {
		return
	}

	shown := table
	if maxRows > 0 {
		shown = table.Head(maxRows)
	}

	rows := make([][]string, 0, shown.Len())
	for _, row := range shown.Rows {
		cells := make([]string, len(table.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = truncate(FormatCell(row[i]), maxCellWidth)
			}
		}
		rows = append(rows, cells)
	}

	if title != "" {
		fmt.Fprintf(p.out, "%s (%d of %d rows)\n", title, shown.Len(), table.Len())
	}
	p.renderTable(table.Columns, rows)
}

// PrintOutput outputs chart suggestions and insights.
func (p *Printer) PrintOutput(output *types.Output) {
	if output == nil {
		return
	}

	var sb strings.Builder
	if len(output.Charts) > 0 {
		sb.WriteString("Charts:\n")
		for _, c := range output.Charts {
			sb.WriteString(fmt.Sprintf("  • %s: %s (x=%s, y=%s)\n", c.Type, c.Title, c.X, c.Y))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Insights:\n")
	for _, insight := range output.Insights {
		sb.WriteString(fmt.Sprintf("  • %s\n", insight))
	}

	p.printHeader("INSIGHTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRunSummary outputs the run status, attempts and stage timings.
func (p *Printer) PrintRunSummary(st *pipeline.State) {
	if st == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:       %s\n", st.RunID))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", st.Status))
	sb.WriteString(fmt.Sprintf("Attempts:  %d\n", st.Attempts))
	if st.Verdict != nil {
		sb.WriteString(fmt.Sprintf("Verdict:   %s\n", st.Verdict))
	}
	sb.WriteString("\n")

	var total time.Duration
	for _, timing := range st.Timings {
		total += timing.Duration
		sb.WriteString(fmt.Sprintf("  %-9s #%d  %s\n", timing.Step, timing.Attempt, timing.Duration.Round(time.Millisecond)))
	}
	sb.WriteString(fmt.Sprintf("  %-9s     %s", "total", total.Round(time.Millisecond)))

	p.printBox("RUN SUMMARY", sb.String())
}

// PrintLogs outputs the run's audit trail.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintLogs(logs []string) {
	if len(logs) == 0 {
		return
	}
	fmt.Fprintln(p.out, "Logs:")
	for _, line := range logs {
		fmt.Fprintf(p.out, "  %s\n", strings.ReplaceAll(line, "\n", "\n    "))
	}
}

func (p *Printer) renderTable(header []string, rows [][]string) {
	table := tablewriter.NewWriter(p.out)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

// FormatCell renders a cell value for display; nil renders as NULL.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatCell(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
