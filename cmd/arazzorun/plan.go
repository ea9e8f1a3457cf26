package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alirezaght/arazzo/internal/plan"
	"github.com/alirezaght/arazzo/internal/validate"
)

var planWorkflowID string
var planInputsJSON string

var planCmd = &cobra.Command{
	Use:   "plan <document>",
	Short: "Print the dependency plan for a workflow without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, _, err := loadDocument(args[0])
		if err != nil {
			return infraError(err)
		}
		if violations := validate.Validate(doc); len(violations) > 0 {
			return validationFailed(fmt.Errorf("document invalid: %s", validate.Format(violations)))
		}

		inputs, err := parseInputsJSON(planInputsJSON)
		if err != nil {
			return validationFailed(err)
		}

		p, err := plan.Build(doc, planWorkflowID, inputs)
		if err != nil {
			return validationFailed(err)
		}
		out, _ := json.MarshalIndent(p, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planWorkflowID, "workflow", "", "workflow id to plan (defaults to the document's sole workflow)")
	planCmd.Flags().StringVar(&planInputsJSON, "inputs", "{}", "JSON object of concrete workflow inputs")
}

func parseInputsJSON(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var inputs map[string]any
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, fmt.Errorf("parsing --inputs: %w", err)
	}
	return inputs, nil
}
