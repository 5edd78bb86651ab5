package patopt

import (
	"strconv"
	"strings"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
	"github.com/chazu/mbasic/value"
)

// parseTemplates parses the text of a <Pattern> or <Replace> element: one
// instruction per non-blank line.
func parseTemplates(text string, replace bool) ([]Template, error) {
	var out []Template
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t, err := ParseTemplate(line, replace)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseTemplate parses one instruction template in either form:
//
//	OPCODE intspec,doublespec,stringspec @action ...
//	OPCODE I(spec) D(spec) S(spec) @action ...
//
// A spec is "-" (missing), "*" (any), a value, "lo:hi" (range) or "!value"
// (not). Omitted fields are not constrained. Replacement templates accept
// only values and "-".
func ParseTemplate(line string, replace bool) (Template, error) {
	t := Template{Text: line}
	words := splitWords(line)
	if len(words) == 0 {
		return t, status.New(status.ErrRule, "empty instruction")
	}

	if words[0] == "*" {
		if replace {
			return t, status.New(status.ErrRule, "%s: replacement needs a concrete opcode", line)
		}
		t.AnyOp = true
	} else {
		op, ok := bytecode.OpcodeByName(words[0])
		if !ok {
			return t, status.New(status.ErrRule, "%s: unknown opcode %s", line, words[0])
		}
		t.Op = op
	}

	positional := false
	for _, w := range words[1:] {
		switch {
		case strings.HasPrefix(w, "@"):
			a, ok := ParseAction(w[1:])
			if !ok {
				return t, status.New(status.ErrAction, "%s: %s", line, w)
			}
			if replace && !a.IsReplaceAction() || !replace && !a.IsPatternAction() {
				return t, status.New(status.ErrAction, "%s: %s not allowed here", line, w)
			}
			t.Actions = append(t.Actions, a)

		case len(w) > 2 && w[1] == '(' && strings.HasSuffix(w, ")") && strings.ContainsRune("IDS", rune(w[0])):
			if len(t.Actions) > 0 {
				return t, status.New(status.ErrRule, "%s: operands must precede actions", line)
			}
			if err := t.setField(w[0], w[2:len(w)-1]); err != nil {
				return t, status.New(status.ErrRule, "%s", line).Wrap(err)
			}

		default:
			if positional || len(t.Actions) > 0 {
				return t, status.New(status.ErrRule, "%s: unexpected %s", line, w)
			}
			positional = true
			parts := splitUnquoted(w, ',')
			if len(parts) > 3 {
				return t, status.New(status.ErrRule, "%s: too many operands", line)
			}
			for i, p := range parts {
				if err := t.setField("IDS"[i], p); err != nil {
					return t, status.New(status.ErrRule, "%s", line).Wrap(err)
				}
			}
		}
	}

	if replace {
		for _, m := range []Mode{t.Int.Mode, t.Double.Mode, t.Str.Mode} {
			if m != Ignore && m != Exact && m != Missing {
				return t, status.New(status.ErrRule, "%s: replacement operands must be values", line)
			}
		}
	}
	return t, nil
}

func (t *Template) setField(field byte, spec string) error {
	var err error
	switch field {
	case 'I':
		t.Int, err = parseSpec(spec, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
	case 'D':
		t.Double, err = parseSpec(spec, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
	case 'S':
		t.Str, err = parseSpec(spec, parseString)
	}
	return err
}

func parseSpec[T int64 | float64 | string](spec string, conv func(string) (T, error)) (FieldSpec[T], error) {
	var f FieldSpec[T]
	var err error
	switch {
	case spec == "":
		f.Mode = Ignore
	case spec == "-":
		f.Mode = Missing
	case spec == "*":
		f.Mode = Any
	case strings.HasPrefix(spec, "!"):
		f.Mode = Not
		f.Lo, err = conv(spec[1:])
	default:
		bounds := splitUnquoted(spec, ':')
		switch len(bounds) {
		case 1:
			f.Mode = Exact
			f.Lo, err = conv(spec)
		case 2:
			f.Mode = Range
			if f.Lo, err = conv(bounds[0]); err == nil {
				f.Hi, err = conv(bounds[1])
			}
		default:
			return f, status.New(status.ErrRule, "bad range %s", spec)
		}
	}
	return f, err
}

// parseString accepts a bare word or a double-quoted string with
// backslash escapes.
func parseString(s string) (string, error) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return value.Unescape(s[1 : len(s)-1]), nil
	}
	if strings.ContainsRune(s, '"') {
		return "", status.New(status.ErrRule, "bad string %s", s)
	}
	return s, nil
}

// splitWords splits on blanks outside double quotes and parentheses. A
// word ending in a comma is joined with the next one.
func splitWords(line string) []string {
	var words []string
	var cur strings.Builder
	quoted, depth := false, 0
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quoted && c == '\\' && i+1 < len(line):
			cur.WriteByte(c)
			i++
			cur.WriteByte(line[i])
			continue
		case c == '"':
			quoted = !quoted
		case !quoted && c == '(':
			depth++
		case !quoted && c == ')' && depth > 0:
			depth--
		case !quoted && depth == 0 && (c == ' ' || c == '\t'):
			if s := cur.String(); strings.HasSuffix(s, ",") {
				continue
			}
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return words
}

// splitUnquoted splits s at sep characters that are outside quotes.
func splitUnquoted(s string, sep byte) []string {
	var parts []string
	quoted, start := false, 0
	for i := 0; i < len(s); i++ {
		switch {
		case quoted && s[i] == '\\':
			i++
		case s[i] == '"':
			quoted = !quoted
		case !quoted && s[i] == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
