package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/expr"
)

func evalCtxWithStatus(status int) *expr.Context {
	return &expr.Context{
		StatusCode: status,
	}
}

func TestDefaultSuccess(t *testing.T) {
	assert.True(t, DefaultSuccess(200))
	assert.True(t, DefaultSuccess(299))
	assert.False(t, DefaultSuccess(300))
	assert.False(t, DefaultSuccess(199))
}

func TestEvaluateCriterion_SimpleNumericComparison(t *testing.T) {
	c := document.Criterion{Condition: "$statusCode == 200"}
	ok, err := EvaluateCriterion(c, evalCtxWithStatus(200))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateCriterion(c, evalCtxWithStatus(404))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateCriterion_SimpleStringComparison(t *testing.T) {
	evalCtx := &expr.Context{
		Outputs: map[string]any{"status": "ready"},
	}
	c := document.Criterion{Condition: `$outputs.status == "ready"`}
	ok, err := EvaluateCriterion(c, evalCtx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateCriterion_MalformedSimpleErrors(t *testing.T) {
	c := document.Criterion{Condition: "not a comparison"}
	_, err := EvaluateCriterion(c, evalCtxWithStatus(200))
	assert.Error(t, err)
}

func TestEvaluateCriterion_Regex(t *testing.T) {
	evalCtx := &expr.Context{
		Outputs: map[string]any{"message": "order-12345-confirmed"},
	}
	c := document.Criterion{
		Type:      document.CriterionRegex,
		Context:   "$outputs.message",
		Condition: `^order-\d+-confirmed$`,
	}
	ok, err := EvaluateCriterion(c, evalCtx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateCriterion_JSONPathFilterMatchesElement(t *testing.T) {
	evalCtx := &expr.Context{
		Outputs: map[string]any{
			"items": []any{
				map[string]any{"status": "pending"},
				map[string]any{"status": "shipped"},
			},
		},
	}
	c := document.Criterion{
		Type:      document.CriterionJSONPath,
		Context:   "$outputs.items",
		Condition: `$[?(@.status == "shipped")]`,
	}
	ok, err := EvaluateCriterion(c, evalCtx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateCriterion_JSONPathFilterNoMatch(t *testing.T) {
	evalCtx := &expr.Context{
		Outputs: map[string]any{
			"items": []any{
				map[string]any{"status": "pending"},
			},
		},
	}
	c := document.Criterion{
		Type:      document.CriterionJSONPath,
		Context:   "$outputs.items",
		Condition: `$[?(@.status == "shipped")]`,
	}
	ok, err := EvaluateCriterion(c, evalCtx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateCriterion_JSONPathPlainPathExistence(t *testing.T) {
	evalCtx := &expr.Context{
		Outputs: map[string]any{
			"order": map[string]any{"id": "abc-1"},
		},
	}
	c := document.Criterion{
		Type:      document.CriterionJSONPath,
		Context:   "$outputs.order",
		Condition: `$.id`,
	}
	ok, err := EvaluateCriterion(c, evalCtx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateCriterion_XPathNeverExecutes(t *testing.T) {
	c := document.Criterion{
		Type:      document.CriterionXPath,
		Context:   "$outputs.order",
		Condition: "//id",
		Version:   "xpath-30",
	}
	evalCtx := &expr.Context{Outputs: map[string]any{"order": map[string]any{"id": "abc-1"}}}
	ok, err := EvaluateCriterion(c, evalCtx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareValues_StringFallback(t *testing.T) {
	assert.True(t, compareValues("abc", "==", "abc"))
	assert.False(t, compareValues("abc", "==", "def"))
	assert.True(t, compareValues("a", "<", "b"))
}

func TestParseLiteral(t *testing.T) {
	assert.Equal(t, float64(42), parseLiteral("42"))
	assert.Equal(t, true, parseLiteral("true"))
	assert.Equal(t, "plain", parseLiteral("plain"))
	assert.Equal(t, "quoted", parseLiteral(`"quoted"`))
}
