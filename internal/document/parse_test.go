package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonDoc = `{
  "arazzo": "1.0.1",
  "info": {"title": "X", "version": "0.1"},
  "sourceDescriptions": [{"name": "s1", "url": "https://a/b"}],
  "workflows": [{"workflowId": "w1", "steps": [{"stepId": "s1", "operationId": "op"}]}],
  "x-owner": "platform-team"
}`

const yamlDoc = `
arazzo: 1.0.1
info:
  title: X
  version: "0.1"
sourceDescriptions:
  - name: s1
    url: https://a/b
workflows:
  - workflowId: w1
    steps:
      - stepId: s1
        operationId: op
`

func TestParse_JSON(t *testing.T) {
	doc, err := Parse([]byte(jsonDoc))
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, doc.Format)
	assert.Equal(t, "1.0.1", doc.Arazzo)
	assert.Equal(t, "X", doc.Info.Title)
	require.Len(t, doc.Workflows, 1)
	assert.Equal(t, "w1", doc.Workflows[0].WorkflowID)
	require.Len(t, doc.Workflows[0].Steps, 1)
	assert.Equal(t, "op", doc.Workflows[0].Steps[0].OperationID)
	assert.Equal(t, "platform-team", doc.Extensions["x-owner"])
}

func TestParse_YAML(t *testing.T) {
	doc, err := Parse([]byte(yamlDoc))
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, doc.Format)
	assert.Equal(t, "w1", doc.Workflows[0].WorkflowID)
	assert.NotNil(t, doc.Projection)
	assert.Equal(t, "X", doc.Projection["info"].(map[string]any)["title"])
}

func TestParse_InvalidInput(t *testing.T) {
	_, err := Parse([]byte(`{not valid`))
	assert.Error(t, err)
}

func TestParse_PreservesRawAndComputesStableHash(t *testing.T) {
	doc, err := Parse([]byte(jsonDoc))
	require.NoError(t, err)
	assert.Equal(t, []byte(jsonDoc), doc.Raw)

	h1 := Hash(doc.Raw)
	h2 := Hash(doc.Raw)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	other, err := Parse([]byte(yamlDoc))
	require.NoError(t, err)
	assert.NotEqual(t, h1, Hash(other.Raw))
}

func TestDocument_RoundTripPreservesExtensions(t *testing.T) {
	doc, err := Parse([]byte(jsonDoc))
	require.NoError(t, err)

	out, err := doc.MarshalJSON()
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, doc.Arazzo, again.Arazzo)
	assert.Equal(t, doc.Workflows[0].WorkflowID, again.Workflows[0].WorkflowID)
	assert.Equal(t, "platform-team", again.Extensions["x-owner"])
}

func TestDocument_FindWorkflowAndStep(t *testing.T) {
	doc, err := Parse([]byte(jsonDoc))
	require.NoError(t, err)

	wf, ok := doc.FindWorkflow("w1")
	require.True(t, ok)
	step, ok := wf.FindStep("s1")
	require.True(t, ok)
	assert.True(t, step.IsOperationStep())
	assert.False(t, step.IsWorkflowStep())

	_, ok = doc.FindWorkflow("missing")
	assert.False(t, ok)

	sd, ok := doc.FindSourceDescription("s1")
	require.True(t, ok)
	assert.Equal(t, "https://a/b", sd.URL)
}
