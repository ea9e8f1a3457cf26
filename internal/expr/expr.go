// Package expr implements the Arazzo runtime-expression grammar, the
// embedded-template string grammar, and RFC 6901 JSON pointer resolution
// (spec.md §4.1). It never accepts an arbitrary expression language: only
// the closed grammar below is recognized.
package expr

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tags which runtime-expression form an Expression represents.
type Kind string

const (
	KindURL                Kind = "url"
	KindMethod             Kind = "method"
	KindStatusCode         Kind = "statusCode"
	KindRequestHeader      Kind = "request.header"
	KindRequestQuery       Kind = "request.query"
	KindRequestPath        Kind = "request.path"
	KindRequestBody        Kind = "request.body"
	KindResponseHeader     Kind = "response.header"
	KindResponseBody       Kind = "response.body"
	KindInputs             Kind = "inputs"
	KindOutputs            Kind = "outputs"
	KindSteps              Kind = "steps"
	KindWorkflows          Kind = "workflows"
	KindSourceDescriptions Kind = "sourceDescriptions"
	KindComponentsParam    Kind = "components.parameters"
	KindComponents         Kind = "components"
)

// Expression is a parsed runtime expression.
type Expression struct {
	Kind       Kind
	Name       string   // header/query/path name, $components.parameters.<name>
	StepID     string   // only for KindSteps
	Path       []string // dotted path segments (inputs/outputs/steps/workflows/sourceDescriptions/components)
	Pointer    string   // JSON pointer, without leading '#', possibly ""
	HasPointer bool
	Raw        string
}

var (
	nameRe  = regexp.MustCompile(`^[a-zA-Z0-9.\-_]+$`)
	tcharRe = regexp.MustCompile("^[!#$%&'*+.^_`|~0-9A-Za-z-]+$")
)

// IsRuntimeExpression reports whether s begins with the runtime-expression
// sigil.
func IsRuntimeExpression(s string) bool {
	return strings.HasPrefix(s, "$")
}

// Parse parses a full runtime expression (must start with "$").
func Parse(s string) (*Expression, error) {
	if !IsRuntimeExpression(s) {
		return nil, fmt.Errorf("runtime expression must start with '$': %q", s)
	}
	body := s[1:]

	switch {
	case body == "url":
		return &Expression{Kind: KindURL, Raw: s}, nil
	case body == "method":
		return &Expression{Kind: KindMethod, Raw: s}, nil
	case body == "statusCode":
		return &Expression{Kind: KindStatusCode, Raw: s}, nil
	case strings.HasPrefix(body, "request."):
		return parseRequestResponse(s, body[len("request."):], true)
	case strings.HasPrefix(body, "response."):
		return parseRequestResponse(s, body[len("response."):], false)
	case strings.HasPrefix(body, "inputs."):
		path, ptr, hasPtr, err := parsePathAndPointer(body[len("inputs."):])
		if err != nil {
			return nil, err
		}
		return &Expression{Kind: KindInputs, Path: path, Pointer: ptr, HasPointer: hasPtr, Raw: s}, nil
	case strings.HasPrefix(body, "outputs."):
		path, ptr, hasPtr, err := parsePathAndPointer(body[len("outputs."):])
		if err != nil {
			return nil, err
		}
		return &Expression{Kind: KindOutputs, Path: path, Pointer: ptr, HasPointer: hasPtr, Raw: s}, nil
	case strings.HasPrefix(body, "steps."):
		return parseSteps(s, body[len("steps."):])
	case strings.HasPrefix(body, "workflows."):
		path, ptr, hasPtr, err := parsePathAndPointer(body[len("workflows."):])
		if err != nil {
			return nil, err
		}
		return &Expression{Kind: KindWorkflows, Path: path, Pointer: ptr, HasPointer: hasPtr, Raw: s}, nil
	case strings.HasPrefix(body, "sourceDescriptions."):
		path, ptr, hasPtr, err := parsePathAndPointer(body[len("sourceDescriptions."):])
		if err != nil {
			return nil, err
		}
		return &Expression{Kind: KindSourceDescriptions, Path: path, Pointer: ptr, HasPointer: hasPtr, Raw: s}, nil
	case strings.HasPrefix(body, "components.parameters."):
		name := body[len("components.parameters."):]
		if name == "" || !nameRe.MatchString(name) {
			return nil, fmt.Errorf("invalid $components.parameters name in %q", s)
		}
		return &Expression{Kind: KindComponentsParam, Name: name, Raw: s}, nil
	case strings.HasPrefix(body, "components."):
		path, ptr, hasPtr, err := parsePathAndPointer(body[len("components."):])
		if err != nil {
			return nil, err
		}
		return &Expression{Kind: KindComponents, Path: path, Pointer: ptr, HasPointer: hasPtr, Raw: s}, nil
	default:
		return nil, fmt.Errorf("unrecognized runtime expression: %q", s)
	}
}

func parseRequestResponse(raw, rest string, isRequest bool) (*Expression, error) {
	switch {
	case strings.HasPrefix(rest, "header."):
		name := rest[len("header."):]
		if name == "" || !tcharRe.MatchString(name) {
			return nil, fmt.Errorf("invalid header token in %q", raw)
		}
		kind := KindResponseHeader
		if isRequest {
			kind = KindRequestHeader
		}
		return &Expression{Kind: kind, Name: name, Raw: raw}, nil
	case isRequest && strings.HasPrefix(rest, "query."):
		name := rest[len("query."):]
		if name == "" || !nameRe.MatchString(name) {
			return nil, fmt.Errorf("invalid query name in %q", raw)
		}
		return &Expression{Kind: KindRequestQuery, Name: name, Raw: raw}, nil
	case isRequest && strings.HasPrefix(rest, "path."):
		name := rest[len("path."):]
		if name == "" || !nameRe.MatchString(name) {
			return nil, fmt.Errorf("invalid path name in %q", raw)
		}
		return &Expression{Kind: KindRequestPath, Name: name, Raw: raw}, nil
	case rest == "body" || strings.HasPrefix(rest, "body#") || strings.HasPrefix(rest, "body["):
		remainder := rest[len("body"):]
		kind := KindResponseBody
		if isRequest {
			kind = KindRequestBody
		}
		if remainder == "" {
			return &Expression{Kind: kind, Raw: raw}, nil
		}
		// accept both "body#/ptr" and "body[#/ptr]" forms
		remainder = strings.TrimPrefix(remainder, "[")
		remainder = strings.TrimSuffix(remainder, "]")
		if !strings.HasPrefix(remainder, "#") {
			return nil, fmt.Errorf("invalid body pointer in %q", raw)
		}
		ptr := remainder[1:]
		if err := ValidatePointer(ptr); err != nil {
			return nil, fmt.Errorf("invalid json pointer in %q: %w", raw, err)
		}
		return &Expression{Kind: kind, Pointer: ptr, HasPointer: true, Raw: raw}, nil
	default:
		kind := "response"
		if isRequest {
			kind = "request"
		}
		return nil, fmt.Errorf("unrecognized $%s.%s form in %q", kind, rest, raw)
	}
}

func parseSteps(raw, rest string) (*Expression, error) {
	idx := strings.IndexAny(rest, ".#")
	var stepID, remainder string
	if idx < 0 {
		stepID = rest
	} else {
		stepID = rest[:idx]
		remainder = rest[idx:]
	}
	if stepID == "" || !nameRe.MatchString(stepID) {
		return nil, fmt.Errorf("invalid step id in %q", raw)
	}
	remainder = strings.TrimPrefix(remainder, ".")
	path, ptr, hasPtr, err := parsePathAndPointer(remainder)
	if err != nil {
		return nil, fmt.Errorf("in %q: %w", raw, err)
	}
	return &Expression{Kind: KindSteps, StepID: stepID, Path: path, Pointer: ptr, HasPointer: hasPtr, Raw: raw}, nil
}

// parsePathAndPointer splits "a.b.c#/json/pointer" into (["a","b","c"], "/json/pointer", true, nil).
// An empty input yields a nil path with no pointer.
func parsePathAndPointer(s string) ([]string, string, bool, error) {
	if s == "" {
		return nil, "", false, nil
	}
	var pathPart, pointerPart string
	hasPtr := false
	if idx := strings.Index(s, "#"); idx >= 0 {
		pathPart = s[:idx]
		pointerPart = s[idx+1:]
		hasPtr = true
	} else {
		pathPart = s
	}
	var path []string
	if pathPart != "" {
		path = strings.Split(pathPart, ".")
		for _, seg := range path {
			if seg == "" || !nameRe.MatchString(seg) {
				return nil, "", false, fmt.Errorf("invalid path segment %q", seg)
			}
		}
	}
	if hasPtr {
		if err := ValidatePointer(pointerPart); err != nil {
			return nil, "", false, err
		}
	}
	return path, pointerPart, hasPtr, nil
}
