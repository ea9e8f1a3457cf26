package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/expr"
	"github.com/alirezaght/arazzo/internal/secret"
)

// resolveReplacements evaluates a request body's payload tree (substituting
// runtime expressions, templates and secret references at every leaf) and
// then applies its replacements, each a JSON-pointer target plus a
// resolved value, via sjson so fields no replacement targets keep their
// resolved values. The payload is marshaled from a generic map first, so
// object keys come out in sorted order, not the document's order.
func resolveReplacements(rb *document.RequestBody, evalCtx *expr.Context, resolveSecret func(string) (string, error), containsSecret *bool) ([]byte, error) {
	resolvedPayload, err := resolvePayloadValue(rb.Payload, evalCtx, resolveSecret, containsSecret)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	body, err := json.Marshal(resolvedPayload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	for _, r := range rb.Replacements {
		val, err := resolveLeafValue(r.Value, evalCtx, resolveSecret, containsSecret)
		if err != nil {
			return nil, fmt.Errorf("replacement %s: %w", r.Target, err)
		}
		path := pointerToSJSONPath(r.Target)
		body, err = sjson.SetBytes(body, path, val)
		if err != nil {
			return nil, fmt.Errorf("replacement %s: %w", r.Target, err)
		}
	}
	return body, nil
}

// resolvePayloadValue deep-walks a generic JSON tree, resolving every leaf
// string through resolveLeafValue.
func resolvePayloadValue(raw any, evalCtx *expr.Context, resolveSecret func(string) (string, error), containsSecret *bool) (any, error) {
	switch t := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := resolvePayloadValue(v, evalCtx, resolveSecret, containsSecret)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := resolvePayloadValue(v, evalCtx, resolveSecret, containsSecret)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return resolveLeafValue(raw, evalCtx, resolveSecret, containsSecret)
	}
}

// resolveLeafValue resolves one scalar leaf: a secret reference embedded
// directly as the leaf string, a runtime expression/template that itself
// resolves to a secret reference, or an ordinary literal.
func resolveLeafValue(raw any, evalCtx *expr.Context, resolveSecret func(string) (string, error), containsSecret *bool) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	if secret.IsLikelyRef(s) {
		resolved, err := resolveSecret(s)
		if err != nil {
			return nil, err
		}
		*containsSecret = true
		return resolved, nil
	}
	v, err := expr.ResolveValue(s, evalCtx)
	if err != nil {
		return nil, err
	}
	if rs, ok := v.(string); ok && secret.IsLikelyRef(rs) {
		resolved, err := resolveSecret(rs)
		if err != nil {
			return nil, err
		}
		*containsSecret = true
		return resolved, nil
	}
	return v, nil
}

// pointerToSJSONPath converts an RFC 6901 JSON pointer into sjson's
// dot-path syntax, escaping sjson's own path metacharacters.
func pointerToSJSONPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	if ptr == "" || ptr == "/" {
		return ""
	}
	toks := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	escaper := strings.NewReplacer(".", "\\.", "*", "\\*", "?", "\\?")
	for i, t := range toks {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		toks[i] = escaper.Replace(t)
	}
	return strings.Join(toks, ".")
}
