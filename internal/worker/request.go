// Package worker implements the per-attempt step execution of spec.md
// §4.10: building a request from a compiled operation and step parameters,
// enforcing the policy gate, sending the HTTP exchange, evaluating success
// criteria, and recording the outcome.
package worker

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/expr"
	"github.com/alirezaght/arazzo/internal/openapi"
	"github.com/alirezaght/arazzo/internal/secret"
)

// builtRequest is the assembled, pre-policy-gate HTTP exchange shape, plus a
// flag noting whether any secret was embedded anywhere in the request.
type builtRequest struct {
	Method         string
	URL            string
	Headers        map[string][]string
	Body           []byte
	ContainsSecret bool
	SecretHeaders  map[string]bool
}

// resolveParameter dereferences a reusable parameter to its components
// definition; an inline parameter is returned as is. The value itself is
// not evaluated here.
func resolveParameter(doc *document.Document, p document.Parameter) (document.Parameter, error) {
	if !p.IsReusable() {
		return p, nil
	}
	name := strings.TrimPrefix(p.Reference, "$components.parameters.")
	if doc.Components == nil {
		return document.Parameter{}, fmt.Errorf("parameter reference %q: no components defined", p.Reference)
	}
	resolved, ok := doc.Components.Parameters[name]
	if !ok {
		return document.Parameter{}, fmt.Errorf("parameter reference %q: not found", p.Reference)
	}
	return resolved, nil
}

// buildRequest assembles the outbound HTTP exchange for one attempt.
func buildRequest(doc *document.Document, step *document.Step, op *openapi.ResolvedOperation, evalCtx *expr.Context, allowSecretInPathQuery bool, resolveSecret func(ref string) (string, error)) (*builtRequest, error) {
	headers := map[string][]string{}
	query := url.Values{}
	pathParams := map[string]string{}
	var cookies []string
	secretHeaders := map[string]bool{}
	containsSecret := false

	resolveLeaf := func(raw any, allowSecret bool) (string, bool, error) {
		v, err := expr.ResolveValue(raw, evalCtx)
		if err != nil {
			return "", false, err
		}
		s := expr.Stringify(v)
		if secret.IsLikelyRef(s) {
			if !allowSecret {
				return s, false, fmt.Errorf("secret reference not permitted in this position")
			}
			resolved, err := resolveSecret(s)
			if err != nil {
				return "", false, err
			}
			return resolved, true, nil
		}
		return s, false, nil
	}

	for _, raw := range step.Parameters {
		p, err := resolveParameter(doc, raw)
		if err != nil {
			return nil, err
		}
		allowSecret := p.In == "header" || p.In == "cookie" || allowSecretInPathQuery
		val, isSecret, err := resolveLeaf(p.Value, allowSecret)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		switch p.In {
		case "header":
			headers[p.Name] = append(headers[p.Name], val)
			if isSecret {
				secretHeaders[p.Name] = true
				containsSecret = true
			}
		case "query":
			query.Add(p.Name, val)
			if isSecret {
				containsSecret = true
			}
		case "path":
			pathParams[p.Name] = val
			if isSecret {
				containsSecret = true
			}
		case "cookie":
			cookies = append(cookies, p.Name+"="+val)
			if isSecret {
				secretHeaders["Cookie"] = true
				containsSecret = true
			}
		default:
			return nil, fmt.Errorf("parameter %s: unsupported location %q", p.Name, p.In)
		}
	}
	if len(cookies) > 0 {
		headers["Cookie"] = append(headers["Cookie"], strings.Join(cookies, "; "))
	}

	path := op.Path
	for name, val := range pathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(val))
	}

	fullURL := strings.TrimRight(op.BaseURL, "/") + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var body []byte
	if step.RequestBody != nil {
		payload, err := resolveReplacements(step.RequestBody, evalCtx, resolveSecret, &containsSecret)
		if err != nil {
			return nil, fmt.Errorf("request body: %w", err)
		}
		body = payload
		if step.RequestBody.ContentType != "" {
			headers["Content-Type"] = []string{step.RequestBody.ContentType}
		} else if len(body) > 0 {
			headers["Content-Type"] = []string{"application/json"}
		}
	}

	return &builtRequest{
		Method:         op.Method,
		URL:            fullURL,
		Headers:        headers,
		Body:           body,
		ContainsSecret: containsSecret,
		SecretHeaders:  secretHeaders,
	}, nil
}

// sortedHeaderNames returns h's header names in sorted order.
func sortedHeaderNames(h map[string][]string) []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
