package parse

import (
	"regexp"
	"strings"
)

// Repair applies a best-effort structural normalization pass to near-JSON
// model output so the strict parser can take a second run at it: code fences
// and surrounding prose are stripped, smart quotes normalized, unquoted keys
// quoted, trailing separators removed, and unbalanced brackets closed.
//
// The pass is lossy by design. It only repairs structure; it never invents
// missing semantic fields. Callers keep the raw text for logging.
func Repair(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripFences(s)
	s = clipToObject(s)
	s = normalizeQuotes(s)
	s = quoteBareKeys(s)
	s = stripTrailingSeparators(s)
	s = closeUnbalanced(s)
	return s
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		first := strings.TrimSpace(s[:i])
		if len(first) <= 8 && !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// clipToObject cuts leading/trailing prose around the outermost brace pair.
func clipToObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	end := strings.LastIndexByte(s, '}')
	if end > start {
		return s[start : end+1]
	}
	// Truncated object: keep everything from the opening brace.
	return s[start:]
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, // “ ”
	"‘", `'`, "’", `'`, // ‘ ’
)

func normalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

var bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

// quoteBareKeys wraps unquoted object keys in double quotes. Keys inside
// string values can be touched by this, which is acceptable for a lossy
// repair pass.
func quoteBareKeys(s string) string {
	return bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
}

var trailingSepRe = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingSeparators(s string) string {
	out := trailingSepRe.ReplaceAllString(s, "$1")
	// A truncated reply may end on a dangling separator.
	return strings.TrimRight(strings.TrimRight(out, " \t\r\n"), ",")
}

// closeUnbalanced scans the text tracking string and escape state, then
// appends whatever closers the structure still owes: a closing quote if the
// text ends inside a string, then brackets in reverse nesting order.
func closeUnbalanced(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
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
			stack = append(stack, c)
		case '}':
			if n := len(stack); n > 0 && stack[n-1] == '{' {
				stack = stack[:n-1]
			}
		case ']':
			if n := len(stack); n > 0 && stack[n-1] == '[' {
				stack = stack[:n-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
