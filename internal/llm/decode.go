package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// Outcome classifies how a delegate response was decoded
type Outcome int

const (
	// OutcomeMalformed means no JSON document could be recovered
	OutcomeMalformed Outcome = iota
	// OutcomeWellFormed means the whole response parsed directly
	OutcomeWellFormed
	// OutcomeRecoverable means a fenced or embedded JSON span parsed
	OutcomeRecoverable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWellFormed:
		return "well-formed"
	case OutcomeRecoverable:
		return "recoverable"
	default:
		return "malformed"
	}
}

// ErrEmptyResponse is the cause recorded for blank delegate output
var ErrEmptyResponse = errors.New("empty response")

// DecodeJSON parses untrusted delegate text into T.
// It tries the trimmed text as-is, then the text with markdown fences and
// preamble removed, then the first balanced {...} span. When none parse the
// outcome is OutcomeMalformed and the error is a *types.DelegateFormatError.
func DecodeJSON[T any](stage, raw string) (T, Outcome, error) {
	var zero T
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return zero, OutcomeMalformed, &types.DelegateFormatError{Stage: stage, Raw: raw, Cause: ErrEmptyResponse}
	}

	value, err := unmarshalInto[T](trimmed)
	if err == nil {
		return value, OutcomeWellFormed, nil
	}
	firstErr := err

	tried := map[string]bool{trimmed: true}
	for _, candidate := range []string{CleanJSONBlock(trimmed), ExtractJSONObject(trimmed)} {
		if candidate == "" || tried[candidate] {
			continue
		}
		tried[candidate] = true
		if value, err := unmarshalInto[T](candidate); err == nil {
			return value, OutcomeRecoverable, nil
		}
	}

	return zero, OutcomeMalformed, &types.DelegateFormatError{Stage: stage, Raw: raw, Cause: firstErr}
}

func unmarshalInto[T any](text string) (T, error) {
	var value T
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}
