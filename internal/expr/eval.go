package expr

import (
	"fmt"
	"strings"
)

// StepOutputsFunc fetches a previously-succeeded step's outputs through the
// state store. Expression evaluation never reads step outputs through a
// local cache (spec.md §3, Ownership).
type StepOutputsFunc func(stepID string) (map[string]any, error)

// Context carries the values a runtime expression may resolve against at a
// given evaluation site. Not every field is populated in every phase: e.g.
// $statusCode/$response.* only make sense once a response exists.
type Context struct {
	URL        string
	Method     string
	StatusCode int

	RequestHeaders map[string][]string
	RequestQuery   map[string][]string
	RequestPath    map[string]string
	RequestBody    any

	ResponseHeaders map[string][]string
	ResponseBody    any

	Inputs             map[string]any
	Outputs            map[string]any
	Workflows          map[string]any
	SourceDescriptions map[string]any
	Components         map[string]any

	StepOutputs StepOutputsFunc
}

// Evaluate resolves a parsed runtime expression against ctx, returning a
// JSON-compatible value (nil/bool/float64/string/[]any/map[string]any), or
// an int for $statusCode.
func Evaluate(e *Expression, ctx *Context) (any, error) {
	switch e.Kind {
	case KindURL:
		return ctx.URL, nil
	case KindMethod:
		return ctx.Method, nil
	case KindStatusCode:
		return ctx.StatusCode, nil
	case KindRequestHeader:
		return firstOrJoin(ctx.RequestHeaders, e.Name), nil
	case KindRequestQuery:
		return firstOrJoin(ctx.RequestQuery, e.Name), nil
	case KindRequestPath:
		if ctx.RequestPath == nil {
			return nil, nil
		}
		return ctx.RequestPath[e.Name], nil
	case KindRequestBody:
		return resolveBody(ctx.RequestBody, e)
	case KindResponseHeader:
		return firstOrJoin(ctx.ResponseHeaders, e.Name), nil
	case KindResponseBody:
		return resolveBody(ctx.ResponseBody, e)
	case KindInputs:
		return resolvePathPointer(ctx.Inputs, e)
	case KindOutputs:
		return resolvePathPointer(ctx.Outputs, e)
	case KindWorkflows:
		return resolvePathPointer(ctx.Workflows, e)
	case KindSourceDescriptions:
		return resolvePathPointer(ctx.SourceDescriptions, e)
	case KindComponentsParam:
		if ctx.Components == nil {
			return nil, fmt.Errorf("no components available for $components.parameters.%s", e.Name)
		}
		params, _ := ctx.Components["parameters"].(map[string]any)
		if params == nil {
			return nil, fmt.Errorf("$components.parameters.%s: no parameters defined", e.Name)
		}
		v, ok := params[e.Name]
		if !ok {
			return nil, fmt.Errorf("$components.parameters.%s: not found", e.Name)
		}
		return v, nil
	case KindComponents:
		return resolvePathPointer(ctx.Components, e)
	case KindSteps:
		if ctx.StepOutputs == nil {
			return nil, fmt.Errorf("$steps.%s: no step-output resolver configured", e.StepID)
		}
		outs, err := ctx.StepOutputs(e.StepID)
		if err != nil {
			return nil, fmt.Errorf("$steps.%s: %w", e.StepID, err)
		}
		// The grammar's <path> always begins with the literal "outputs"
		// segment (spec.md §4.1, "$steps.<stepId>.<path>"), but
		// StepOutputsFunc returns the step's outputs map unwrapped.
		return resolvePathPointer(map[string]any{"outputs": outs}, e)
	default:
		return nil, fmt.Errorf("unsupported expression kind %q", e.Kind)
	}
}

// EvaluateTemplate evaluates a parsed template against ctx, returning a
// string with every expression segment substituted by its string form.
func EvaluateTemplate(segs []Segment, ctx *Context) (string, error) {
	var b strings.Builder
	for _, seg := range segs {
		if seg.Expr == nil {
			b.WriteString(seg.Literal)
			continue
		}
		v, err := Evaluate(seg.Expr, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(Stringify(v))
	}
	return b.String(), nil
}

// Stringify renders a JSON-compatible value as a template-safe string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstOrJoin(m map[string][]string, name string) string {
	if m == nil {
		return ""
	}
	// header lookup is case-insensitive per RFC 7230.
	for k, vals := range m {
		if strings.EqualFold(k, name) {
			return strings.Join(vals, ", ")
		}
	}
	return ""
}

func resolveBody(body any, e *Expression) (any, error) {
	if !e.HasPointer {
		return body, nil
	}
	v, ok, err := ResolvePointer(body, e.Pointer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("json pointer %q not found in body", e.Pointer)
	}
	return v, nil
}

func resolvePathPointer(root map[string]any, e *Expression) (any, error) {
	var cur any = root
	for _, seg := range e.Path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path segment %q: not an object", seg)
		}
		next, present := m[seg]
		if !present {
			return nil, fmt.Errorf("path segment %q: not found", seg)
		}
		cur = next
	}
	if !e.HasPointer {
		return cur, nil
	}
	v, ok, err := ResolvePointer(cur, e.Pointer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("json pointer %q not found", e.Pointer)
	}
	return v, nil
}
