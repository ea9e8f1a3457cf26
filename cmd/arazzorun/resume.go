package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/scheduler"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run after a crash: reclaim stale running steps and continue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID := args[0]

		st, err := openStore()
		if err != nil {
			return infraError(err)
		}
		defer st.Close()

		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return infraError(fmt.Errorf("loading run %s: %w", runID, err))
		}

		docRow, err := st.GetWorkflowDoc(ctx, run.DocHash)
		if err != nil {
			return infraError(fmt.Errorf("loading workflow document for run %s: %w", runID, err))
		}
		doc, err := document.Parse([]byte(docRow.Raw))
		if err != nil {
			return infraError(fmt.Errorf("reparsing workflow document: %w", err))
		}

		var inputs map[string]any
		if err := json.Unmarshal([]byte(run.Inputs), &inputs); err != nil {
			return infraError(fmt.Errorf("decoding frozen run inputs: %w", err))
		}

		cw, err := compile(ctx, doc, run.WorkflowID, inputs)
		if err != nil {
			return err
		}

		deadline := time.Now().Add(-scheduler.DefaultStaleResetAfter)
		reclaimed, err := st.ResetStaleRunningSteps(ctx, runID, deadline)
		if err != nil {
			return infraError(fmt.Errorf("resetting stale running steps: %w", err))
		}
		fmt.Printf("reclaimed %d stale running step(s)\n", reclaimed)

		return execute(ctx, st, cw, run.ID, inputs)
	},
}
