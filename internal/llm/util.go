// Package llm - util.go trims delegate replies down to the JSON they carry.
package llm

import "strings"

// CleanJSONBlock strips a markdown fence and any prose around the first
// JSON object or array in a delegate reply. Replies with no balanced value
// come back trimmed but otherwise unchanged, so the decoder can report them.
func CleanJSONBlock(text string) string {
	text = stripFence(strings.TrimSpace(text))

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closeCh := byte('}')
	if text[start] == '[' {
		closeCh = ']'
	}
	if span := balancedSpan(text[start:], text[start], closeCh); span != "" {
		return span
	}
	return text
}

// ExtractJSONObject returns the first balanced {...} span in text, or "".
func ExtractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	return balancedSpan(text[start:], '{', '}')
}

// stripFence removes a ``` fence and its optional language tag.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := text[len("```"):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(line string) bool {
	line = strings.TrimSpace(line)
	return len(line) < 20 && !strings.ContainsAny(line, " {[")
}

// balancedSpan scans from the opening delimiter at text[0] to its matching
// close. Delimiters inside JSON strings are ignored.
func balancedSpan(text string, open, closeCh byte) string {
	if text == "" || text[0] != open {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
