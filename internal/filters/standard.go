// internal/filters/standard.go
package filters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Standard returns a registry holding replace_chars and the common text filters.
//
// Template pipelines pass the piped value as the final argument, so every
// filter takes its own arguments first and the input last:
//
//	{{ .title | replace_chars "abc" "xyz" }}  ==  replace_chars("abc", "xyz", .title)
func Standard(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.MustRegister("replace_chars", replaceCharsFilter)
	r.MustRegister("upcase", func(in any) string { return strings.ToUpper(toString(in)) })
	r.MustRegister("downcase", func(in any) string { return strings.ToLower(toString(in)) })
	r.MustRegister("capitalize", capitalize)
	r.MustRegister("strip", func(in any) string { return strings.TrimSpace(toString(in)) })
	r.MustRegister("replace", func(old, new string, in any) string {
		return strings.ReplaceAll(toString(in), old, new)
	})
	r.MustRegister("remove", func(sub string, in any) string {
		return strings.ReplaceAll(toString(in), sub, "")
	})
	r.MustRegister("append", func(suffix string, in any) string { return toString(in) + suffix })
	r.MustRegister("prepend", func(prefix string, in any) string { return prefix + toString(in) })
	r.MustRegister("truncate", truncate)
	r.MustRegister("default", defaultValue)
	r.MustRegister("size", size)
	r.MustRegister("slugify", slugify)
	r.MustRegister("jsonify", jsonify)
	return r
}

// replaceCharsFilter is ReplaceChars in pipeline argument order.
func replaceCharsFilter(before, after string, in any) string {
	return ReplaceChars(toString(in), before, after)
}

// toString renders a template value as text. nil renders as "".
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func capitalize(in any) string {
	s := toString(in)
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}

// truncate cuts to maxLen characters, ending in "..." when there is room for it.
func truncate(maxLen int, in any) string {
	runes := []rune(toString(in))
	if maxLen < 0 {
		maxLen = 0
	}
	if len(runes) <= maxLen {
		return string(runes)
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// defaultValue returns fallback when in is nil, false or an empty string.
func defaultValue(fallback, in any) any {
	switch v := in.(type) {
	case nil:
		return fallback
	case string:
		if v == "" {
			return fallback
		}
	case bool:
		if !v {
			return fallback
		}
	}
	return in
}

// size counts characters of strings and elements of collections.
func size(in any) int {
	if s, ok := in.(string); ok {
		return utf8.RuneCountInString(s)
	}
	v := reflect.ValueOf(in)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return v.Len()
	case reflect.String:
		return utf8.RuneCountInString(v.String())
	default:
		return 0
	}
}

func slugify(in any) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(toString(in)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func jsonify(in any) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("jsonify: %w", err)
	}
	return string(b), nil
}
