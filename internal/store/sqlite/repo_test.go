package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alirezaght/arazzo/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "arazzo_test.db")
	db, err := Open(dbPath, PureGoDriver)
	require.NoError(t, err)
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRun(t *testing.T, s store.Store) *store.WorkflowRun {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertWorkflowDoc(ctx, store.WorkflowDoc{
		DocHash:    "hash-1",
		Format:     "json",
		Raw:        `{"arazzo":"1.0.0"}`,
		Projection: `{}`,
	}))

	steps := []store.StepSpec{
		{StepID: "login", StepIndex: 0, DependsOn: nil},
		{StepID: "fetch", StepIndex: 1, DependsOn: []string{"login"}},
		{StepID: "report", StepIndex: 2, DependsOn: []string{"fetch"}},
	}
	run, created, err := s.CreateRunAndSteps(ctx, store.RunSpec{
		DocHash:    "hash-1",
		WorkflowID: "wf-1",
		Inputs:     `{}`,
	}, steps)
	require.NoError(t, err)
	assert.True(t, created)
	return run
}

func TestCreateRunAndSteps_IdempotencyKeyReturnsExistingRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertWorkflowDoc(ctx, store.WorkflowDoc{
		DocHash: "hash-2", Format: "json", Raw: `{}`, Projection: `{}`,
	}))

	createdBy := "cli"
	key := "idem-1"
	steps := []store.StepSpec{{StepID: "only", StepIndex: 0}}
	spec := store.RunSpec{DocHash: "hash-2", WorkflowID: "wf-2", Inputs: `{}`, CreatedBy: &createdBy, IdempotencyKey: &key}

	first, created1, err := s.CreateRunAndSteps(ctx, spec, steps)
	require.NoError(t, err)
	assert.True(t, created1)

	second, created2, err := s.CreateRunAndSteps(ctx, spec, steps)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, first.ID, second.ID)
}

func TestClaimRunnableSteps_OnlyClaimsDepsSatisfied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	claimed, err := s.ClaimRunnableSteps(ctx, run.ID, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "login", claimed[0].StepID)
	assert.Equal(t, store.StepRunning, claimed[0].Status)

	// re-claiming immediately must not return the already-running step.
	claimedAgain, err := s.ClaimRunnableSteps(ctx, run.ID, 10, time.Now())
	require.NoError(t, err)
	assert.Empty(t, claimedAgain)
}

func TestMarkStepSucceeded_UnblocksDependents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	claimed, err := s.ClaimRunnableSteps(ctx, run.ID, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, s.MarkStepSucceeded(ctx, claimed[0].ID, `{"token":"abc"}`))

	steps, err := s.ListSteps(ctx, run.ID)
	require.NoError(t, err)
	var fetch store.RunStep
	for _, st := range steps {
		if st.StepID == "fetch" {
			fetch = st
		}
	}
	assert.Equal(t, 0, fetch.DepsRemaining)

	outs, err := s.GetStepOutputs(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", outs["login"]["token"])

	claimable, err := s.ClaimRunnableSteps(ctx, run.ID, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, claimable, 1)
	assert.Equal(t, "fetch", claimable[0].StepID)
}

func TestMarkStepFailed_RecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	claimed, err := s.ClaimRunnableSteps(ctx, run.ID, 10, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.MarkStepFailed(ctx, claimed[0].ID, "boom"))

	step, err := s.GetStep(ctx, run.ID, "login")
	require.NoError(t, err)
	assert.Equal(t, store.StepFailed, step.Status)
	require.NotNil(t, step.Error)
	assert.Contains(t, *step.Error, "boom")
}

func TestResetStaleRunningSteps_ReclaimsPastDeadline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	_, err := s.ClaimRunnableSteps(ctx, run.ID, 10, time.Now())
	require.NoError(t, err)

	n, err := s.ResetStaleRunningSteps(ctx, run.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	step, err := s.GetStep(ctx, run.ID, "login")
	require.NoError(t, err)
	assert.Equal(t, store.StepPending, step.Status)
}

func TestResetStaleRunningSteps_DoesNotTouchOtherRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runA := seedRun(t, s)
	runB := seedRun(t, s)

	_, err := s.ClaimRunnableSteps(ctx, runA.ID, 10, time.Now())
	require.NoError(t, err)
	_, err = s.ClaimRunnableSteps(ctx, runB.ID, 10, time.Now())
	require.NoError(t, err)

	// Resume only scopes the reset to runA; runB's still-running step (a
	// live worker elsewhere may be mid-attempt on it) must be left alone.
	n, err := s.ResetStaleRunningSteps(ctx, runA.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stepA, err := s.GetStep(ctx, runA.ID, "login")
	require.NoError(t, err)
	assert.Equal(t, store.StepPending, stepA.Status)

	stepB, err := s.GetStep(ctx, runB.ID, "login")
	require.NoError(t, err)
	assert.Equal(t, store.StepRunning, stepB.Status)
}

func TestAppendEvent_AndGetEventsAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	ev1, err := s.AppendEvent(ctx, run.ID, "run_started", `{}`)
	require.NoError(t, err)
	ev2, err := s.AppendEvent(ctx, run.ID, "step_started", `{"step":"login"}`)
	require.NoError(t, err)

	all, err := s.GetEventsAfter(ctx, run.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ev1.ID, all[0].ID)
	assert.Equal(t, ev2.ID, all[1].ID)

	after, err := s.GetEventsAfter(ctx, run.ID, ev1.ID, 100)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "step_started", after[0].Type)
}

func TestCancelRun_MarksRunAndPendingStepsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	require.NoError(t, s.CancelRun(ctx, run.ID))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCanceled, got.Status)

	steps, err := s.ListSteps(ctx, run.ID)
	require.NoError(t, err)
	for _, st := range steps {
		assert.NotEqual(t, store.StepRunning, st.Status)
		assert.NotEqual(t, store.StepPending, st.Status)
	}
}
