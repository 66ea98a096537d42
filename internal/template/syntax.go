// internal/template/syntax.go
package template

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	identPath    = regexp.MustCompile(`^[A-Za-z_]\w*(\.[A-Za-z_]\w*)*$`)
	numberLit    = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	liquidFilter = regexp.MustCompile(`(?s)^([A-Za-z_]\w*)\s*:(.*)$`)
)

// goKeywords start actions that are already Go template syntax.
var goKeywords = map[string]bool{
	"if":       true,
	"else":     true,
	"end":      true,
	"range":    true,
	"with":     true,
	"define":   true,
	"template": true,
	"block":    true,
	"break":    true,
	"continue": true,
}

// builtinFuncs are the functions text/template predefines.
var builtinFuncs = []string{
	"and", "or", "not", "len", "index", "slice", "print", "printf", "println",
	"eq", "ne", "lt", "le", "gt", "ge", "html", "js", "urlquery", "call",
}

var comparisons = map[string]string{
	"==": "eq",
	"!=": "ne",
	"<":  "lt",
	"<=": "le",
	">":  "gt",
	">=": "ge",
}

type scope struct {
	tag  string
	vars map[string]bool
}

// converter rewrites Liquid-style markup into Go template syntax. It tracks
// block scopes so loop and assigned variables become $-variables.
type converter struct {
	funcs  map[string]bool
	scopes []scope
}

func newConverter(funcNames []string) *converter {
	funcs := make(map[string]bool, len(funcNames)+len(builtinFuncs))
	for _, name := range builtinFuncs {
		funcs[name] = true
	}
	for _, name := range funcNames {
		funcs[name] = true
	}
	return &converter{
		funcs:  funcs,
		scopes: []scope{{tag: "root", vars: map[string]bool{}}},
	}
}

// convert rewrites every action in src. Go template actions pass through.
//
//   - {{ page.title | replace_chars: "abc", "xyz" }} -> {{.page.title | replace_chars "abc" "xyz"}}
//   - {% if draft %}...{% endif %}                 -> {{if .draft}}...{{end}}
//   - {% for p in pages %}{{ p.url }}{% endfor %}  -> {{range $p := .pages}}{{$p.url}}{{end}}
//   - {% assign t = title | upcase %}              -> {{$t := .title | upcase}}
func (c *converter) convert(src string) string {
	var b strings.Builder
	last := 0
	for {
		blk, ok := nextBlock(src, last)
		if !ok {
			break
		}
		if last == 0 {
			b.Grow(len(src))
		}
		b.WriteString(src[last:blk.start])
		last = blk.end

		var body string
		if blk.tag {
			body, ok = c.tag(blk.body)
		} else {
			body, ok = c.output(blk.body)
		}
		if !ok {
			b.WriteString(src[blk.start:blk.end])
			continue
		}
		b.WriteString(action(blk.ltrim, body, blk.rtrim))
	}
	if last == 0 {
		return src
	}
	b.WriteString(src[last:])
	return b.String()
}

// block is one {{ }} or {% %} action found in the source.
type block struct {
	start, end   int
	tag          bool
	body         string
	ltrim, rtrim bool
}

// nextBlock finds the first action starting at or after from. A closing
// delimiter inside a quoted argument does not end the action.
func nextBlock(src string, from int) (block, bool) {
	for {
		i := strings.IndexByte(src[from:], '{')
		if i < 0 {
			return block{}, false
		}
		i += from
		if i+1 >= len(src) {
			return block{}, false
		}

		var closer string
		switch src[i+1] {
		case '{':
			closer = "}}"
		case '%':
			closer = "%}"
		default:
			from = i + 1
			continue
		}

		open := i + 2
		n := closingIndex(src[open:], closer)
		if n < 0 {
			from = i + 1
			continue
		}

		blk := block{start: i, end: open + n + len(closer), tag: closer == "%}"}
		blk.body, blk.ltrim, blk.rtrim = trimMarkers(src[open:open+n], blk.tag)
		return blk, true
	}
}

// closingIndex returns the offset of closer in s. Quotes are first read as
// Liquid literals, then with Go escapes; an action that is unbalanced under
// both ends at the first closer.
func closingIndex(s, closer string) int {
	if strings.HasPrefix(strings.TrimLeft(s, "- \t\r\n"), "/*") {
		if j := strings.Index(s, "*/"); j >= 0 {
			if k := strings.Index(s[j:], closer); k >= 0 {
				return j + k
			}
		}
		return strings.Index(s, closer)
	}
	if i := unquotedIndex(s, closer, false); i >= 0 {
		return i
	}
	if i := unquotedIndex(s, closer, true); i >= 0 {
		return i
	}
	return strings.Index(s, closer)
}

// unquotedIndex returns the offset of the first sub outside quotes, or -1.
func unquotedIndex(s, sub string, escapes bool) int {
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case quote != 0 && escapes && ch == '\\' && quote != '`':
			escaped = true
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'' || ch == '`':
			quote = ch
		case strings.HasPrefix(s[i:], sub):
			return i
		}
	}
	return -1
}

// trimMarkers strips "-" trim markers from an action body. Output actions
// need whitespace next to the dash so {{-3}} stays a number.
func trimMarkers(inner string, tag bool) (body string, ltrim, rtrim bool) {
	body = inner
	if tag {
		if strings.HasPrefix(body, "-") {
			ltrim = true
			body = strings.TrimLeft(body[1:], " \t\r\n")
		}
		if strings.HasSuffix(body, "-") {
			rtrim = true
			body = strings.TrimRight(body[:len(body)-1], " \t\r\n")
		}
		return body, ltrim, rtrim
	}

	if len(body) >= 2 && body[0] == '-' && isSpace(body[1]) {
		ltrim = true
		body = body[2:]
	}
	if n := len(body); n >= 2 && body[n-1] == '-' && isSpace(body[n-2]) {
		rtrim = true
		body = body[:n-2]
	}
	return body, ltrim, rtrim
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func action(ltrim bool, body string, rtrim bool) string {
	var b strings.Builder
	b.WriteString("{{")
	if ltrim {
		b.WriteString("- ")
	}
	b.WriteString(body)
	if rtrim {
		b.WriteString(" -")
	}
	b.WriteString("}}")
	return b.String()
}

// output converts the body of a {{ }} action. It reports false when the body
// is Go template syntax that must be kept as written.
func (c *converter) output(body string) (string, bool) {
	return c.pipeline(body, false)
}

// pipeline converts a value followed by filters. Quoted strings are Liquid
// literals, with no escape sequences, when literal is set or when any stage
// uses the "name: args" form; otherwise Go quoting rules apply.
func (c *converter) pipeline(body string, literal bool) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || strings.HasPrefix(trimmed, "/*") {
		return body, false
	}

	segments := splitTop(trimmed, '|', false)
	if !literal && !hasLiquidFilter(segments[1:]) {
		segments = splitTop(trimmed, '|', true)
	} else {
		literal = true
	}

	head := strings.TrimSpace(segments[0])
	headTokens := splitArguments(head, !literal)
	if len(headTokens) == 0 || goKeywords[headTokens[0]] {
		return body, false
	}
	if strings.Contains(headTokens[0], ":=") || (len(headTokens) > 1 && (headTokens[1] == ":=" || headTokens[1] == "=")) {
		return body, false
	}

	parts := make([]string, 0, len(segments))
	if len(headTokens) == 1 {
		parts = append(parts, c.operand(headTokens[0], literal))
	} else {
		parts = append(parts, head)
	}
	for _, seg := range segments[1:] {
		parts = append(parts, c.filter(seg, literal))
	}
	return strings.Join(parts, " | "), true
}

func hasLiquidFilter(segments []string) bool {
	for _, seg := range segments {
		if liquidFilter.MatchString(strings.TrimSpace(seg)) {
			return true
		}
	}
	return false
}

// filter converts one pipeline stage. Both "name: a, b" and "name a b" are accepted.
func (c *converter) filter(seg string, literal bool) string {
	seg = strings.TrimSpace(seg)
	if m := liquidFilter.FindStringSubmatch(seg); m != nil {
		out := []string{m[1]}
		for _, arg := range splitTop(m[2], ',', !literal) {
			arg = strings.TrimSpace(arg)
			if arg == "" {
				continue
			}
			out = append(out, c.operand(arg, literal))
		}
		return strings.Join(out, " ")
	}

	tokens := splitArguments(seg, !literal)
	for i := 1; i < len(tokens); i++ {
		tokens[i] = c.operand(tokens[i], literal)
	}
	return strings.Join(tokens, " ")
}

// operand converts a single value reference. Bare names are always variables,
// even when a filter has the same name.
func (c *converter) operand(tok string, literal bool) string {
	switch {
	case tok == "":
		return tok
	case isQuotedString(tok) && (literal || tok[0] == '\''):
		return strconv.Quote(tok[1 : len(tok)-1])
	case isQuotedString(tok), strings.HasPrefix(tok, "`"):
		return tok
	case numberLit.MatchString(tok):
		return tok
	case tok == "true" || tok == "false" || tok == "nil":
		return tok
	case tok[0] == '.' || tok[0] == '$' || tok[0] == '(':
		return tok
	case identPath.MatchString(tok):
		root, rest, hasRest := strings.Cut(tok, ".")
		if c.isVar(root) {
			if hasRest {
				return "$" + root + "." + rest
			}
			return "$" + root
		}
		return "." + tok
	default:
		return tok
	}
}

// tag converts the body of a {% %} tag. Unknown tags report false.
func (c *converter) tag(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	tokens := splitArguments(trimmed, false)
	if len(tokens) == 0 {
		return "", false
	}

	switch tokens[0] {
	case "if":
		cond := c.condition(tokens[1:])
		c.push("if")
		return "if " + cond, true
	case "unless":
		cond := c.condition(tokens[1:])
		c.push("unless")
		return "if not (" + cond + ")", true
	case "elsif":
		return "else if " + c.condition(tokens[1:]), true
	case "else":
		return "else", true
	case "endif", "endunless", "endfor":
		c.pop()
		return "end", true
	case "for":
		if len(tokens) != 4 || tokens[2] != "in" || !identPath.MatchString(tokens[1]) || strings.Contains(tokens[1], ".") {
			return "", false
		}
		list := c.operand(tokens[3], true)
		c.push("for")
		c.declare(tokens[1])
		return "range $" + tokens[1] + " := " + list, true
	case "assign":
		name, expr, found := strings.Cut(strings.TrimSpace(strings.TrimPrefix(trimmed, "assign")), "=")
		name = strings.TrimSpace(name)
		if !found || !identPath.MatchString(name) || strings.Contains(name, ".") {
			return "", false
		}
		value, ok := c.pipeline(expr, true)
		if !ok {
			value = strings.TrimSpace(expr)
		}
		op := " := "
		if c.scopes[len(c.scopes)-1].vars[name] {
			op = " = "
		}
		c.declare(name)
		return "$" + name + op + value, true
	default:
		return "", false
	}
}

// condition converts a tag condition: a single operand, a comparison, or a
// homogeneous and/or chain. Anything else is passed through as a call when it
// starts with a known function.
func (c *converter) condition(tokens []string) string {
	switch {
	case len(tokens) == 1:
		return c.operand(tokens[0], true)
	case len(tokens) == 3 && comparisons[tokens[1]] != "":
		return comparisons[tokens[1]] + " " + c.operand(tokens[0], true) + " " + c.operand(tokens[2], true)
	case len(tokens) >= 3 && len(tokens)%2 == 1:
		op := tokens[1]
		if op == "and" || op == "or" {
			operands := []string{c.operand(tokens[0], true)}
			homogeneous := true
			for i := 1; i < len(tokens); i += 2 {
				if tokens[i] != op {
					homogeneous = false
					break
				}
				operands = append(operands, c.operand(tokens[i+1], true))
			}
			if homogeneous {
				return op + " " + strings.Join(operands, " ")
			}
		}
	}

	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if i == 0 && c.funcs[tok] {
			out[i] = tok
			continue
		}
		out[i] = c.operand(tok, true)
	}
	return strings.Join(out, " ")
}

func (c *converter) push(tag string) {
	c.scopes = append(c.scopes, scope{tag: tag, vars: map[string]bool{}})
}

func (c *converter) pop() {
	if len(c.scopes) > 1 {
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
}

func (c *converter) declare(name string) {
	c.scopes[len(c.scopes)-1].vars[name] = true
}

func (c *converter) isVar(name string) bool {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if c.scopes[i].vars[name] {
			return true
		}
	}
	return false
}

// splitTop splits s on sep, ignoring separators inside quotes or parentheses.
// With escapes set, a backslash inside quotes escapes the next character.
func splitTop(s string, sep rune, escapes bool) []string {
	var parts []string
	var current strings.Builder
	var quote rune
	escaped := false
	depth := 0

	for _, ch := range s {
		switch {
		case escaped:
			escaped = false
		case quote != 0 && escapes && ch == '\\' && quote != '`':
			escaped = true
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			if depth > 0 {
				depth--
			}
		case ch == sep && depth == 0:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}
	return append(parts, current.String())
}

// splitArguments splits on whitespace while respecting quoted strings.
// escapes has the same meaning as for splitTop.
func splitArguments(args string, escapes bool) []string {
	var parts []string
	var current strings.Builder
	var quote rune
	escaped := false

	for _, ch := range args {
		switch {
		case escaped:
			escaped = false
			current.WriteRune(ch)
		case quote != 0 && escapes && ch == '\\' && quote != '`':
			escaped = true
			current.WriteRune(ch)
		case quote == 0 && (ch == '"' || ch == '\'' || ch == '`'):
			quote = ch
			current.WriteRune(ch)
		case quote != 0 && ch == quote:
			quote = 0
			current.WriteRune(ch)
		case quote == 0 && (ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'):
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// isQuotedString checks if a string is wrapped in matching quotes.
func isQuotedString(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')
}
