package expr

// ResolveValue evaluates a raw document value that may be a full runtime
// expression ("$..."), a template string ("...{ $... }..."), or a literal.
// Full expressions preserve their native JSON type; templates and string
// literals yield strings, and non-string raw values are returned unchanged.
func ResolveValue(raw any, ctx *Context) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	if IsRuntimeExpression(s) {
		e, err := Parse(s)
		if err != nil {
			return nil, err
		}
		return Evaluate(e, ctx)
	}
	if IsTemplate(s) {
		segs, err := ParseTemplate(s)
		if err != nil {
			return nil, err
		}
		return EvaluateTemplate(segs, ctx)
	}
	return s, nil
}
