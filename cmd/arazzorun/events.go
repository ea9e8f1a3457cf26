package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	eventsAfter int64
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "List a run's event log, paging by (run_id, id > cursor)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return infraError(err)
		}
		defer st.Close()

		evs, err := st.GetEventsAfter(ctx, args[0], eventsAfter, eventsLimit)
		if err != nil {
			return infraError(err)
		}
		out, _ := json.MarshalIndent(evs, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int64Var(&eventsAfter, "after", 0, "only return events with id greater than this cursor")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "maximum number of events to return")
}
