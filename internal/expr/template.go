package expr

import (
	"fmt"
	"strings"
)

// Segment is one piece of a parsed template string: either literal text or
// an embedded runtime expression.
type Segment struct {
	Literal string
	Expr    *Expression
}

// IsTemplate reports whether s contains at least one "{ $..." opener.
func IsTemplate(s string) bool {
	i := 0
	for i < len(s) {
		if s[i] == '{' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			if j < len(s) && s[j] == '$' {
				return true
			}
		}
		i++
	}
	return false
}

// ParseTemplate parses a template string into literal and expression
// segments. A "{" is only an expression opener when, after optional
// whitespace, it is followed by "$"; otherwise it is literal. Unclosed
// "{ $..." is an error. Nested "{"/"}" within an expression is disallowed.
func ParseTemplate(s string) ([]Segment, error) {
	var segs []Segment
	var lit strings.Builder
	i, n := 0, len(s)

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, Segment{Literal: lit.String()})
			lit.Reset()
		}
	}

	for i < n {
		c := s[i]
		if c != '{' {
			lit.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < n && (s[j] == ' ' || s[j] == '\t') {
			j++
		}
		if j >= n || s[j] != '$' {
			lit.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(s[j:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unclosed expression starting at offset %d", i)
		}
		end += j
		inner := s[j:end]
		if strings.ContainsRune(inner, '{') {
			return nil, fmt.Errorf("nested '{' not allowed inside expression at offset %d", i)
		}
		e, err := Parse(strings.TrimSpace(inner))
		if err != nil {
			return nil, fmt.Errorf("template expression at offset %d: %w", i, err)
		}
		flush()
		segs = append(segs, Segment{Expr: e})
		i = end + 1
	}
	flush()
	return segs, nil
}
