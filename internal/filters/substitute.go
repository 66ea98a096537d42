// internal/filters/substitute.go
package filters

import (
	"strings"
	"unicode/utf8"
)

// Table maps a source character to its replacement.
type Table map[rune]rune

// NewTable pairs the characters of before and after by index.
// A character repeated in before keeps its last pairing. Characters of before
// past the end of after get no entry, and surplus characters of after are ignored.
func NewTable(before, after string) Table {
	t := make(Table, utf8.RuneCountInString(before))
	targets := []rune(after)

	i := 0
	for _, r := range before {
		if i >= len(targets) {
			break
		}
		t[r] = targets[i]
		i++
	}
	return t
}

// Apply returns text with every character found in the table replaced.
// Bytes that are not valid UTF-8 are copied through unchanged.
func (t Table) Apply(text string) string {
	if len(t) == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteByte(text[i])
			i++
			continue
		}
		if to, ok := t[r]; ok {
			b.WriteRune(to)
		} else {
			b.WriteString(text[i : i+size])
		}
		i += size
	}
	return b.String()
}

// ReplaceChars substitutes each character of before found in text with the
// character at the same position in after. Matching is literal.
func ReplaceChars(text, before, after string) string {
	if before == "" {
		return text
	}
	return NewTable(before, after).Apply(text)
}
