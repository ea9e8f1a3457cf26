package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alirezaght/arazzo/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <document>",
	Short: "Validate an Arazzo document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, _, err := loadDocument(args[0])
		if err != nil {
			return infraError(err)
		}
		violations := validate.Validate(doc)
		out, _ := json.MarshalIndent(violations, "", "  ")
		fmt.Println(string(out))
		if len(violations) > 0 {
			return validationFailed(fmt.Errorf("%d violation(s)", len(violations)))
		}
		return nil
	},
}
