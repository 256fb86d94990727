package validation

import (
	"strings"
	"unicode"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// ParseVerdict reads the judge's reply. The result is Valid only when the
// word "valid" appears and no negation ("not", "invalid", "isn't", ...)
// does; empty, ambiguous or unexpected replies are NotValid.
func ParseVerdict(raw string) types.Verdict {
	words := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '’'
	})

	sawValid := false
	for _, w := range words {
		w = strings.Trim(w, "'’")
		switch {
		case isNegation(w):
			return types.VerdictNotValid
		case w == "valid":
			sawValid = true
		}
	}
	if sawValid {
		return types.VerdictValid
	}
	return types.VerdictNotValid
}

func isNegation(word string) bool {
	switch word {
	case "not", "invalid", "no", "never":
		return true
	}
	return strings.HasSuffix(word, "n't") || strings.HasSuffix(word, "n’t")
}
