package parse

import "strings"

// Normalize strips non-JSON wrapping from raw provider text: markdown code
// fences (optionally tagged with a language hint) and any prose before the
// first structural bracket or after its matching closing bracket.
//
// If no JSON-like structure is found, the trimmed original text is returned
// unchanged so the decode stage produces the failure, not this one.
// Pure function: no side effects, always returns a string.
func Normalize(text string) string {
	s := strings.TrimSpace(text)

	// Leading fence marker, with or without a language tag. The whole first
	// line is dropped; the matching trailing fence is removed if present.
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}

	end := matchingBracketEnd(s, start)
	if end == -1 {
		return s
	}

	return strings.TrimSpace(s[start : end+1])
}

// matchingBracketEnd scans from the opening bracket at start and returns the
// index of the closing bracket that balances it, skipping bracket characters
// inside JSON string literals. Returns -1 if the text never balances.
func matchingBracketEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
