package validation

import (
	"fmt"
	"regexp"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// injectionPatterns match text that addresses the delegate instead of
// describing a question or data
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|everything)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are\s+)?an?\s`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)(respond|answer|reply)\s+(only\s+)?with\s+"?valid"?`),
}

// Finding is one piece of input that reads like an instruction to the delegate
type Finding struct {
	Source string
	Match  string
}

// ScanInput checks the question and every column name, description and
// sample value for instruction-like text. Findings are advisory; the run
// continues either way.
func ScanInput(query string, md types.Metadata) []Finding {
	var findings []Finding
	check := func(source, text string) {
		for _, p := range injectionPatterns {
			if m := p.FindString(text); m != "" {
				findings = append(findings, Finding{Source: source, Match: m})
				return
			}
		}
	}

	check("query", query)
	for _, col := range md {
		source := "column " + col.Name
		check(source, col.Name)
		check(source, col.Description)
		for _, v := range col.SampleValues {
			if s, ok := v.(string); ok {
				check(source, s)
			}
		}
	}
	return findings
}

// String renders the finding for logs
func (f Finding) String() string {
	return fmt.Sprintf("%s: %q", f.Source, f.Match)
}
