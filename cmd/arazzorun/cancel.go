package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Request cancellation of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return infraError(err)
		}
		defer st.Close()

		if err := st.CancelRun(ctx, args[0]); err != nil {
			return infraError(err)
		}
		fmt.Printf("run %s canceled\n", args[0])
		return nil
	},
}
