package worker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/expr"
)

// ResponseContext is the per-attempt outcome that success criteria are
// evaluated against (spec.md §4.10.8).
type ResponseContext struct {
	Status    int
	Headers   map[string][]string
	BodyBytes []byte
	BodyJSON  any // nil if the body did not parse as JSON
}

// DefaultSuccess applies when a step declares no success criteria at all.
func DefaultSuccess(status int) bool { return status >= 200 && status < 300 }

var simpleCriterionRe = regexp.MustCompile(`^(\S+)\s*(==|!=|<=|>=|<|>)\s*(.+)$`)

// EvaluateCriterion dispatches a single success criterion by its tag, per
// spec.md §4.10.8. xpath is validated but deliberately never executed
// (spec.md §9, Open Question 1): it always returns false.
func EvaluateCriterion(c document.Criterion, evalCtx *expr.Context) (bool, error) {
	switch c.EffectiveType() {
	case document.CriterionSimple:
		return evaluateSimple(c.Condition, evalCtx)
	case document.CriterionRegex:
		ctxVal, err := resolveCriterionContext(c.Context, evalCtx)
		if err != nil {
			return false, err
		}
		re, err := regexp.Compile(c.Condition)
		if err != nil {
			return false, fmt.Errorf("invalid regex criterion %q: %w", c.Condition, err)
		}
		return re.MatchString(expr.Stringify(ctxVal)), nil
	case document.CriterionJSONPath:
		ctxVal, err := resolveCriterionContext(c.Context, evalCtx)
		if err != nil {
			return false, err
		}
		return evaluateJSONPath(c.Condition, ctxVal)
	case document.CriterionXPath:
		return false, nil
	case document.CriterionCustom:
		if strings.HasPrefix(c.Version, "xpath-") {
			return false, nil
		}
		ctxVal, err := resolveCriterionContext(c.Context, evalCtx)
		if err != nil {
			return false, err
		}
		return evaluateJSONPath(c.Condition, ctxVal)
	default:
		return false, fmt.Errorf("unsupported criterion type %q", c.Type)
	}
}

func resolveCriterionContext(contextExpr string, evalCtx *expr.Context) (any, error) {
	e, err := expr.Parse(contextExpr)
	if err != nil {
		return nil, fmt.Errorf("criterion context %q: %w", contextExpr, err)
	}
	return expr.Evaluate(e, evalCtx)
}

// evaluateSimple parses "<lhs-expr> <op> <literal>" and compares the
// runtime-expression-resolved left side against the literal right side.
func evaluateSimple(condition string, evalCtx *expr.Context) (bool, error) {
	m := simpleCriterionRe.FindStringSubmatch(strings.TrimSpace(condition))
	if m == nil {
		return false, fmt.Errorf("malformed simple criterion %q", condition)
	}
	lhsExpr, op, litRaw := m[1], m[2], strings.TrimSpace(m[3])

	e, err := expr.Parse(lhsExpr)
	if err != nil {
		return false, fmt.Errorf("simple criterion lhs %q: %w", lhsExpr, err)
	}
	lhs, err := expr.Evaluate(e, evalCtx)
	if err != nil {
		return false, err
	}
	lit := parseLiteral(litRaw)
	return compareValues(lhs, op, lit), nil
}

// parseLiteral parses a criterion's right-hand literal as JSON first
// (number, bool, null, quoted string), falling back to the raw string.
func parseLiteral(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func compareValues(lhs any, op string, rhs any) bool {
	lf, lok := asFloat(lhs)
	rf, rok := asFloat(rhs)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case "<":
			return lf < rf
		case ">":
			return lf > rf
		case "<=":
			return lf <= rf
		case ">=":
			return lf >= rf
		}
		return false
	}

	ls, rs := expr.Stringify(lhs), expr.Stringify(rhs)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case "<":
		return ls < rs
	case ">":
		return ls > rs
	case "<=":
		return ls <= rs
	case ">=":
		return ls >= rs
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var jsonpathFilterRe = regexp.MustCompile(`^\$\[\?\(?(.+?)\)?\]$`)
var filterCondRe = regexp.MustCompile(`^@\.(\S+)\s*(==|!=|<=|>=|<|>)\s*(.+)$`)

// evaluateJSONPath applies a jsonpath-flavored condition to a resolved
// context value, per spec.md §4.10.8: a "$[?...]" filter wraps a
// non-array context in a one-element array so the filter can match; when
// the filter body itself splits as "<path> <op> <literal>" that
// sub-condition gates each element; otherwise a non-empty node set (after
// a plain path query) is truthy.
func evaluateJSONPath(condition string, contextVal any) (bool, error) {
	condition = strings.TrimSpace(condition)

	if m := jsonpathFilterRe.FindStringSubmatch(condition); m != nil {
		arr := toArray(contextVal)
		inner := strings.TrimSpace(m[1])
		fm := filterCondRe.FindStringSubmatch(inner)
		if fm == nil {
			return len(arr) > 0, nil
		}
		path, op, litRaw := fm[1], fm[2], strings.TrimSpace(fm[3])
		lit := parseLiteral(litRaw)
		for _, el := range arr {
			b, err := json.Marshal(el)
			if err != nil {
				continue
			}
			res := gjson.GetBytes(b, path)
			if !res.Exists() {
				continue
			}
			if compareValues(gjsonValue(res), op, lit) {
				return true, nil
			}
		}
		return false, nil
	}

	b, err := json.Marshal(contextVal)
	if err != nil {
		return false, fmt.Errorf("marshaling jsonpath context: %w", err)
	}
	path := strings.TrimPrefix(condition, "$.")
	path = strings.TrimPrefix(path, "$")
	res := gjson.GetBytes(b, path)
	return res.Exists(), nil
}

func toArray(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}

func gjsonValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		return r.Str
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Null:
		return nil
	default:
		return r.Value()
	}
}
