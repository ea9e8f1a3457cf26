package store

import (
	"context"
	"time"
)

// Store is the sole durability surface of the executor: the planner,
// scheduler and worker observe and mutate run state only through these
// operations. Every mutating operation is atomic with respect to concurrent
// schedulers claiming the same run.
type Store interface {
	// UpsertWorkflowDoc stores an immutable, content-addressed parsed
	// document. Calling it twice with the same hash is a no-op.
	UpsertWorkflowDoc(ctx context.Context, doc WorkflowDoc) error
	GetWorkflowDoc(ctx context.Context, docHash string) (*WorkflowDoc, error)

	// CreateRunAndSteps atomically creates a WorkflowRun in status "queued"
	// together with its RunSteps and RunStepEdges. If spec.CreatedBy and
	// spec.IdempotencyKey are both non-nil and a run already exists with that
	// pair, the existing run is returned instead and created is false.
	CreateRunAndSteps(ctx context.Context, spec RunSpec, steps []StepSpec) (run *WorkflowRun, created bool, err error)

	GetRun(ctx context.Context, runID string) (*WorkflowRun, error)
	ListSteps(ctx context.Context, runID string) ([]RunStep, error)
	GetStep(ctx context.Context, runID, stepID string) (*RunStep, error)

	// MarkRunStarted transitions a queued run to running, recording StartedAt.
	MarkRunStarted(ctx context.Context, runID string) error
	// MarkRunFinished transitions a running run to a terminal status.
	MarkRunFinished(ctx context.Context, runID string, status RunStatus, runErr *string) error
	// CancelRun marks a run and all of its non-terminal steps canceled/skipped.
	CancelRun(ctx context.Context, runID string) error

	// ClaimRunnableSteps atomically selects up to limit pending steps whose
	// DepsRemaining is 0 and NextRunAt is not in the future, transitions them
	// to running, and returns them. Concurrent callers never receive the same
	// step.
	ClaimRunnableSteps(ctx context.Context, runID string, limit int, now time.Time) ([]RunStep, error)

	// MarkStepSucceeded records outputs, transitions the step to succeeded,
	// and decrements DepsRemaining on every step that depends on it.
	MarkStepSucceeded(ctx context.Context, runStepID string, outputs string) error
	// MarkStepFailed transitions the step to failed and records the error.
	MarkStepFailed(ctx context.Context, runStepID string, stepErr string) error
	// MarkStepSkipped transitions the step to skipped (unreachable branch).
	MarkStepSkipped(ctx context.Context, runStepID string) error
	// ScheduleRetry leaves the step pending but sets NextRunAt to delay the
	// step's next claim eligibility.
	ScheduleRetry(ctx context.Context, runStepID string, nextRunAt time.Time) error
	// ResetStaleRunningSteps reclaims runID's steps stuck in "running" past
	// the given deadline (e.g. after a crashed worker) back to "pending".
	ResetStaleRunningSteps(ctx context.Context, runID string, olderThan time.Time) (int, error)

	// GetStepOutputs returns the decoded outputs of every succeeded step in
	// a run, keyed by stepId, for runtime-expression evaluation.
	GetStepOutputs(ctx context.Context, runID string) (map[string]map[string]any, error)

	// InsertAttempt records the start of a new attempt for a step, assigning
	// the next sequential AttemptNo.
	InsertAttempt(ctx context.Context, runStepID string, request string) (*StepAttempt, error)
	// FinishAttempt records the terminal outcome of an attempt.
	FinishAttempt(ctx context.Context, attemptID string, status AttemptStatus, response, attemptErr *string, durationMs int64) error
	ListAttempts(ctx context.Context, runStepID string) ([]StepAttempt, error)

	// AppendEvent appends an entry to the run's event log.
	AppendEvent(ctx context.Context, runID, eventType, payload string) (*RunEvent, error)
	// GetEventsAfter returns events for a run with ID greater than afterID,
	// oldest first, used by the events CLI subcommand and the serve API.
	GetEventsAfter(ctx context.Context, runID string, afterID int64, limit int) ([]RunEvent, error)

	Close() error
}
