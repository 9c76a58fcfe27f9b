package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateUTF8 cuts s to at most max bytes without splitting a rune and
// drops any invalid byte sequences, so the result fits a utf8mb4 column.
func TruncateUTF8(s string, max int) string {
	if max >= 0 && len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.ToValidUTF8(s, "")
}
