// internal/security/sanitizer.go
package security

import (
	"strings"
	"unicode/utf8"
)

// MaxDetailLength bounds externally supplied trigger details, in runes.
const MaxDetailLength = 256

// SanitizeValue cleans an externally supplied value, such as a webhook
// payload reason, before it is logged or stored.
// - Strips control characters (0x00-0x1F and 0x7F, except tab)
// - Collapses newlines to spaces so log lines stay single-line
// - Truncates to MaxDetailLength runes
func SanitizeValue(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n >= MaxDetailLength {
			break
		}
		switch {
		case r == '\n' || r == '\r':
			r = ' '
		case (r < 0x20 && r != '\t') || r == 0x7f:
			continue
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

// Truncate shortens s to at most max bytes without splitting a UTF-8
// sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
