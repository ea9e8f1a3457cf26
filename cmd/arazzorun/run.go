package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/plan"
	"github.com/alirezaght/arazzo/internal/store"
)

var (
	runWorkflowID     string
	runInputsJSON     string
	runCreatedBy      string
	runIdempotencyKey string
	runQuiet          bool
)

var runCmd = &cobra.Command{
	Use:   "run <document>",
	Short: "Validate, plan, compile and execute a workflow run to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		doc, raw, err := loadDocument(args[0])
		if err != nil {
			return infraError(err)
		}

		inputs, err := parseInputsJSON(runInputsJSON)
		if err != nil {
			return validationFailed(err)
		}

		cw, err := compile(ctx, doc, runWorkflowID, inputs)
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return infraError(err)
		}
		defer st.Close()

		docHash := document.Hash(raw)
		projection, _ := json.Marshal(doc.Projection)
		if err := st.UpsertWorkflowDoc(ctx, store.WorkflowDoc{
			DocHash:    docHash,
			Format:     doc.Format,
			Raw:        string(raw),
			Projection: string(projection),
		}); err != nil {
			return infraError(fmt.Errorf("storing workflow document: %w", err))
		}

		inputsJSON, _ := json.Marshal(inputs)

		var createdBy, idempotencyKey *string
		if runCreatedBy != "" {
			createdBy = &runCreatedBy
		}
		key := runIdempotencyKey
		if key == "" {
			key = newIdempotencyKey()
		}
		idempotencyKey = &key

		run, created, err := st.CreateRunAndSteps(ctx, store.RunSpec{
			DocHash:        docHash,
			WorkflowID:     cw.Workflow.WorkflowID,
			Inputs:         string(inputsJSON),
			CreatedBy:      createdBy,
			IdempotencyKey: idempotencyKey,
		}, stepSpecsFrom(cw.Plan))
		if err != nil {
			return infraError(fmt.Errorf("creating run: %w", err))
		}
		if !created {
			fmt.Printf("resuming existing run %s for idempotency key %q\n", run.ID, key)
		}

		return execute(ctx, st, cw, run.ID, inputs)
	},
}

func init() {
	runCmd.Flags().StringVar(&runWorkflowID, "workflow", "", "workflow id to run (defaults to the document's sole workflow)")
	runCmd.Flags().StringVar(&runInputsJSON, "inputs", "{}", "JSON object of concrete workflow inputs")
	runCmd.Flags().StringVar(&runCreatedBy, "created-by", "", "opaque identifier for the run's creator")
	runCmd.Flags().StringVar(&runIdempotencyKey, "idempotency-key", "", "idempotency key; with --created-by, a repeated (created-by, key) pair returns the existing run")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress stdout event logging")
}

func stepSpecsFrom(p *plan.Plan) []store.StepSpec {
	specs := make([]store.StepSpec, len(p.Steps))
	for i, s := range p.Steps {
		specs[i] = store.StepSpec{StepID: s.StepID, StepIndex: s.StepIndex, DependsOn: s.DependsOn}
	}
	return specs
}

// execute drives runID's scheduler loop to a terminal state and reports the
// outcome via the spec.md §6 exit-code convention.
func execute(ctx context.Context, st store.Store, cw *compiledWorkflow, runID string, inputs map[string]any) error {
	sink := buildSink(st, nil, runQuiet)
	sched := newScheduler(st, cw, sink, inputs)

	if err := sched.Run(ctx, runID); err != nil {
		return infraError(fmt.Errorf("scheduler: %w", err))
	}

	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return infraError(err)
	}

	fmt.Printf("run %s finished with status %s\n", run.ID, run.Status)
	switch run.Status {
	case store.RunSucceeded:
		return nil
	case store.RunFailed:
		msg := "run failed"
		if run.Error != nil {
			msg = *run.Error
		}
		return runFailed(fmt.Errorf("%s", msg))
	default:
		return nil
	}
}
