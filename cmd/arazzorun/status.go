package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Print a run's current status and step states",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return infraError(err)
		}
		defer st.Close()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return infraError(err)
		}
		steps, err := st.ListSteps(ctx, args[0])
		if err != nil {
			return infraError(err)
		}

		out, _ := json.MarshalIndent(map[string]any{"run": run, "steps": steps}, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}
