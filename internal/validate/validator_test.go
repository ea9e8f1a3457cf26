package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alirezaght/arazzo/internal/document"
)

func mustParse(t *testing.T, raw string) *document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestValidate_HappyPath(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [{"workflowId": "w1", "steps": [{"stepId": "s1", "operationId": "op"}]}]
	}`)

	violations := Validate(doc)
	assert.Empty(t, violations)
}

func TestValidate_MissingParameterIn(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [{"workflowId": "w1", "steps": [{"stepId": "s1", "operationId": "op",
			"parameters": [{"name": "q", "value": 1}]
		}]}]
	}`)

	violations := Validate(doc)
	require.Len(t, violations, 1)
	assert.Equal(t, "$.workflows[0].steps[0].parameters[0].in", violations[0].Path)
}

func TestValidate_RejectsBadVersionAndEmptyInfo(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "2.0.0",
		"info": {"title": "", "version": ""},
		"sourceDescriptions": [],
		"workflows": []
	}`)

	violations := Validate(doc)
	paths := make([]string, len(violations))
	for i, v := range violations {
		paths[i] = v.Path
	}
	assert.Contains(t, paths, "$.arazzo")
	assert.Contains(t, paths, "$.info.title")
	assert.Contains(t, paths, "$.info.version")
	assert.Contains(t, paths, "$.sourceDescriptions")
	assert.Contains(t, paths, "$.workflows")
}

func TestValidate_DuplicateStepID(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [{"workflowId": "w1", "steps": [
			{"stepId": "dup", "operationId": "op"},
			{"stepId": "dup", "operationId": "op"}
		]}]
	}`)

	violations := Validate(doc)
	found := false
	for _, v := range violations {
		if v.Path == "$.workflows[0].steps[1].stepId" {
			found = true
		}
	}
	assert.True(t, found, "expected a duplicate step id violation, got %+v", violations)
}

func TestValidate_StepMustHaveExactlyOneTarget(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [{"workflowId": "w1", "steps": [
			{"stepId": "s1", "operationId": "op", "workflowId": "w1"}
		]}]
	}`)

	violations := Validate(doc)
	require.NotEmpty(t, violations)
	assert.Equal(t, "$.workflows[0].steps[0]", violations[0].Path)
}

func TestFormat(t *testing.T) {
	out := Format([]Violation{
		{Path: "$.a", Message: "bad a"},
		{Path: "$.b", Message: "bad b"},
	})
	assert.Equal(t, "$.a: bad a; $.b: bad b", out)
}
