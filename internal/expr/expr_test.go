package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimpleForms(t *testing.T) {
	for _, s := range []string{"$url", "$method", "$statusCode"} {
		e, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, e.Raw)
	}
}

func TestParse_RequestResponseForms(t *testing.T) {
	e, err := Parse("$request.header.X-Api-Key")
	require.NoError(t, err)
	assert.Equal(t, KindRequestHeader, e.Kind)
	assert.Equal(t, "X-Api-Key", e.Name)

	e, err = Parse("$request.query.limit")
	require.NoError(t, err)
	assert.Equal(t, KindRequestQuery, e.Kind)
	assert.Equal(t, "limit", e.Name)

	e, err = Parse("$request.path.id")
	require.NoError(t, err)
	assert.Equal(t, KindRequestPath, e.Kind)

	_, err = Parse("$response.query.x")
	assert.Error(t, err, "query is only valid on $request")

	e, err = Parse("$response.body#/data/id")
	require.NoError(t, err)
	assert.Equal(t, KindResponseBody, e.Kind)
	assert.Equal(t, "/data/id", e.Pointer)
	assert.True(t, e.HasPointer)

	e, err = Parse("$response.body")
	require.NoError(t, err)
	assert.False(t, e.HasPointer)
}

func TestParse_StepsInputsOutputs(t *testing.T) {
	e, err := Parse("$steps.login.outputs.token")
	require.NoError(t, err)
	assert.Equal(t, KindSteps, e.Kind)
	assert.Equal(t, "login", e.StepID)
	assert.Equal(t, []string{"outputs", "token"}, e.Path)

	e, err = Parse("$inputs.user.id")
	require.NoError(t, err)
	assert.Equal(t, KindInputs, e.Kind)
	assert.Equal(t, []string{"user", "id"}, e.Path)

	_, err = Parse("$inputs..bad")
	assert.Error(t, err, "empty path segment must be rejected")
}

func TestParse_ComponentsParameters(t *testing.T) {
	e, err := Parse("$components.parameters.apiKey")
	require.NoError(t, err)
	assert.Equal(t, KindComponentsParam, e.Kind)
	assert.Equal(t, "apiKey", e.Name)

	_, err = Parse("$components.parameters.")
	assert.Error(t, err)
}

func TestParse_RejectsNonDollarPrefix(t *testing.T) {
	_, err := Parse("url")
	assert.Error(t, err)
}

func TestParse_RejectsUnrecognizedForm(t *testing.T) {
	_, err := Parse("$bogus")
	assert.Error(t, err)
}

func TestIsTemplate(t *testing.T) {
	assert.True(t, IsTemplate("hello { $inputs.name }"))
	assert.True(t, IsTemplate("{$url}"))
	assert.False(t, IsTemplate("no braces here"))
	assert.False(t, IsTemplate("{not an expression}"))
}

func TestParseTemplate_MixedLiteralAndExpression(t *testing.T) {
	segs, err := ParseTemplate("Bearer { $inputs.token }")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "Bearer ", segs[0].Literal)
	require.NotNil(t, segs[1].Expr)
	assert.Equal(t, KindInputs, segs[1].Expr.Kind)
}

func TestParseTemplate_LiteralBraceIsNotAnExpression(t *testing.T) {
	segs, err := ParseTemplate("{literal} and {also literal}")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "{literal} and {also literal}", segs[0].Literal)
}

func TestParseTemplate_UnclosedExpressionErrors(t *testing.T) {
	_, err := ParseTemplate("{ $url")
	assert.Error(t, err)
}

func TestParseTemplate_NestedBraceErrors(t *testing.T) {
	_, err := ParseTemplate("{ $steps.a.outputs.{b} }")
	assert.Error(t, err)
}

func TestResolvePointer(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"items": []any{"a", "b"},
		},
	}
	v, ok, err := ResolvePointer(doc, "/data/items/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok, err = ResolvePointer(doc, "/data/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = ResolvePointer(doc, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, v)
}

func TestResolvePointer_EscapedTokens(t *testing.T) {
	doc := map[string]any{"a/b": map[string]any{"c~d": "value"}}
	v, ok, err := ResolvePointer(doc, "/a~1b/c~0d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestEvaluate_StepsAndInputs(t *testing.T) {
	ctx := &Context{
		Inputs: map[string]any{"userId": "u-1"},
		StepOutputs: func(stepID string) (map[string]any, error) {
			return map[string]any{"token": "abc"}, nil
		},
	}
	e, err := Parse("$steps.login.outputs.token")
	require.NoError(t, err)
	v, err := Evaluate(e, ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	e, err = Parse("$inputs.userId")
	require.NoError(t, err)
	v, err = Evaluate(e, ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", v)
}

func TestEvaluate_StepsOutputsMissingStepErrors(t *testing.T) {
	ctx := &Context{
		StepOutputs: func(stepID string) (map[string]any, error) {
			return nil, assert.AnError
		},
	}
	e, err := Parse("$steps.login.outputs.token")
	require.NoError(t, err)
	_, err = Evaluate(e, ctx)
	assert.Error(t, err)
}

func TestEvaluateTemplate(t *testing.T) {
	ctx := &Context{Inputs: map[string]any{"name": "world"}}
	segs, err := ParseTemplate("hello { $inputs.name }!")
	require.NoError(t, err)
	s, err := EvaluateTemplate(segs, ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", s)
}
