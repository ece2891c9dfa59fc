package convert

import (
	"regexp"
	"strings"
)

var numericPattern = regexp.MustCompile(`^[0-9.]+$`)

// isNumeric reports whether s looks like a bare numeric FHiCL value: digits
// and at most one decimal point, no sign, no exponent.
func isNumeric(s string) bool {
	if !numericPattern.MatchString(s) {
		return false
	}
	return strings.Count(s, ".") <= 1
}

var keyNormalizePattern = regexp.MustCompile(`[\s\-()/#.]+`)

// normalizeKey maps spaces/hyphens/parens/slashes/dots/hashes to a single
// underscore.
func normalizeKey(key string) string {
	return keyNormalizePattern.ReplaceAllString(strings.TrimSpace(key), "_")
}

func isAlreadyArray(v string) bool {
	v = strings.TrimSpace(v)
	return strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]")
}

func isAlreadyQuoted(v string) bool {
	v = strings.TrimSpace(v)
	return len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`)
}

// quoteValue passes through values that are already quoted, already array
// syntax, or numeric; everything else is quoted with inner quotes escaped.
func quoteValue(v string) string {
	v = strings.TrimSpace(v)
	if isAlreadyQuoted(v) || isAlreadyArray(v) || isNumeric(v) {
		return v
	}
	escaped := strings.ReplaceAll(v, `"`, `\"`)
	return `"` + escaped + `"`
}

// formatFHiCLArray quotes each element and wraps the joined list in
// brackets.
func formatFHiCLArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteValue(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// cleanNonASCII maps any byte with a value >= 128 to '.'.
func cleanNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 127 {
			b.WriteByte('.')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// stripComments drops everything from the first '#' onward and trims
// surrounding whitespace. A '#' inside quotes or after a backslash is cut
// the same way; there is no escaping.
func stripComments(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}
