package formatting

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate shortens s to at most max runes without splitting a multi-byte
// character. The second result reports whether s was shortened.
func Truncate(s string, max int) (string, bool) {
	if max < 0 {
		max = 0
	}
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}

	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// NormalizeName folds case and collapses runs of whitespace to a single
// space, trimming both ends. Two names that differ only in case or spacing
// normalize to the same value.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
