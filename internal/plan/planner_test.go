package plan

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

func TestBuild_DependencyGraphLevelsAndTopoOrder(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [{"workflowId": "w1", "steps": [
			{"stepId": "login", "operationId": "op"},
			{"stepId": "createOrder", "operationId": "op",
			 "parameters": [{"name": "token", "in": "header", "value": "$steps.login.outputs.token"}]},
			{"stepId": "fetchOrder", "operationId": "op",
			 "parameters": [{"name": "id", "in": "path", "value": "$steps.createOrder.outputs.orderId"}]}
		]}]
	}`)

	p, err := Build(doc, "w1", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"login", "createOrder", "fetchOrder"}, p.Graph.TopoOrder)
	assert.Equal(t, [][]string{{"login"}, {"createOrder"}, {"fetchOrder"}}, p.Graph.Levels)
	assert.Equal(t, []string{"login"}, p.Graph.DependsOn["createOrder"])
	assert.Equal(t, []string{"createOrder"}, p.Graph.DependsOn["fetchOrder"])
	assert.Empty(t, p.Graph.DependsOn["login"])
}

func TestBuild_DetectsCycle(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [{"workflowId": "w1", "steps": [
			{"stepId": "a", "operationId": "op",
			 "parameters": [{"name": "x", "in": "query", "value": "$steps.b.outputs.x"}]},
			{"stepId": "b", "operationId": "op",
			 "parameters": [{"name": "x", "in": "query", "value": "$steps.a.outputs.x"}]}
		]}]
	}`)

	_, err := Build(doc, "w1", nil)
	require.Error(t, err)
	var cyc *CycleDetected
	require.ErrorAs(t, err, &cyc)
	assert.ElementsMatch(t, []string{"a", "b"}, cyc.Remaining)
}

func TestBuild_TracksReferencedAndMissingInputs(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [{"workflowId": "w1", "steps": [
			{"stepId": "a", "operationId": "op",
			 "parameters": [{"name": "q", "in": "query", "value": "$inputs.userId"}]}
		]}]
	}`)

	p, err := Build(doc, "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"userId"}, p.Steps[0].ReferencedInputs)
	assert.Equal(t, []string{"userId"}, p.Steps[0].MissingInputs)
	assert.Equal(t, []string{"userId"}, p.MissingInputs)

	p2, err := Build(doc, "w1", map[string]any{"userId": "u-1"})
	require.NoError(t, err)
	assert.Empty(t, p2.Steps[0].MissingInputs)
	assert.Empty(t, p2.MissingInputs)
}

func TestBuild_RequiresExplicitWorkflowIDWhenAmbiguous(t *testing.T) {
	doc := mustParse(t, `{
		"arazzo": "1.0.1",
		"info": {"title": "X", "version": "0.1"},
		"sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
		"workflows": [
			{"workflowId": "w1", "steps": [{"stepId": "a", "operationId": "op"}]},
			{"workflowId": "w2", "steps": [{"stepId": "a", "operationId": "op"}]}
		]
	}`)

	_, err := Build(doc, "", nil)
	assert.Error(t, err)

	p, err := Build(doc, "w2", nil)
	require.NoError(t, err)
	assert.Equal(t, "w2", p.Summary.WorkflowID)
}
