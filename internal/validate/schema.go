package validate

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/alirezaght/arazzo/internal/document"
)

// ValidateInputsSchema checks concrete run inputs against a workflow's
// declared JSON Schema `inputs` object (supplements spec.md §4.3.6's
// name-satisfaction check with actual schema conformance).
func ValidateInputsSchema(w *document.Workflow, inputs map[string]any) ([]Violation, error) {
	if len(w.Inputs) == 0 {
		return nil, nil
	}
	schemaLoader := gojsonschema.NewGoLoader(w.Inputs)
	docLoader := gojsonschema.NewGoLoader(inputs)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validating inputs against schema: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	var violations []Violation
	for _, e := range result.Errors() {
		violations = append(violations, Violation{
			Path:    fmt.Sprintf("$.inputs.%s", e.Field()),
			Message: e.Description(),
		})
	}
	return violations, nil
}
