package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidatePointer checks an RFC 6901 JSON pointer: empty, or "/"-prefixed
// with "~0"/"~1" escapes.
func ValidatePointer(ptr string) error {
	if ptr == "" {
		return nil
	}
	if !strings.HasPrefix(ptr, "/") {
		return fmt.Errorf("json pointer must be empty or start with '/': %q", ptr)
	}
	for _, tok := range strings.Split(ptr[1:], "/") {
		for i := 0; i < len(tok); i++ {
			if tok[i] == '~' {
				if i+1 >= len(tok) || (tok[i+1] != '0' && tok[i+1] != '1') {
					return fmt.Errorf("invalid '~' escape in json pointer token %q", tok)
				}
			}
		}
	}
	return nil
}

func unescapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}

// EscapeToken escapes a literal token for embedding into a JSON pointer.
func EscapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	tok = strings.ReplaceAll(tok, "/", "~1")
	return tok
}

// ResolvePointer resolves an RFC 6901 JSON pointer against a generic JSON
// value tree (map[string]any / []any / scalars). Returns ok=false if the
// pointer targets a path that doesn't exist.
func ResolvePointer(doc any, pointer string) (value any, ok bool, err error) {
	if err := ValidatePointer(pointer); err != nil {
		return nil, false, err
	}
	if pointer == "" {
		return doc, true, nil
	}
	cur := doc
	for _, raw := range strings.Split(pointer[1:], "/") {
		tok := unescapeToken(raw)
		switch v := cur.(type) {
		case map[string]any:
			next, present := v[tok]
			if !present {
				return nil, false, nil
			}
			cur = next
		case []any:
			if tok == "-" {
				return nil, false, nil
			}
			idx, convErr := strconv.Atoi(tok)
			if convErr != nil || idx < 0 || idx >= len(v) {
				return nil, false, nil
			}
			cur = v[idx]
		default:
			return nil, false, nil
		}
	}
	return cur, true, nil
}
