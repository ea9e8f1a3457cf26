// Package store defines the durable state store contract of spec.md §3/§4.8:
// the sole durability surface over which the planner, scheduler and worker
// are crash-safe and resumable.
package store

import "time"

// RunStatus is the WorkflowRun state machine.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// StepStatus is the RunStep state machine.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// AttemptStatus is the StepAttempt state machine.
type AttemptStatus string

const (
	AttemptRunning   AttemptStatus = "running"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// WorkflowDoc is a content-addressed, immutable parsed document.
type WorkflowDoc struct {
	DocHash    string
	Format     string
	Raw        string
	Projection string // JSON-encoded projection
	CreatedAt  time.Time
}

// WorkflowRun is one execution of a workflow with fixed inputs.
type WorkflowRun struct {
	ID             string
	DocHash        string
	WorkflowID     string
	Inputs         string // JSON-encoded
	CreatedBy      *string
	IdempotencyKey *string
	Status         RunStatus
	Error          *string
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// RunStep is one workflow step within one run.
type RunStep struct {
	ID             string
	RunID          string
	StepID         string
	StepIndex      int
	DependsOn      []string
	DepsRemaining  int
	Status         StepStatus
	Outputs        *string // JSON-encoded
	Error          *string // JSON-encoded
	NextRunAt      *time.Time
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// RunStepEdge is an immutable directed dependency edge.
type RunStepEdge struct {
	RunID      string
	FromStepID string
	ToStepID   string
}

// StepAttempt is one HTTP exchange performed for a step.
type StepAttempt struct {
	ID          string
	RunStepID   string
	AttemptNo   int
	Status      AttemptStatus
	Request     string // JSON-encoded sanitized snapshot
	Response    *string
	Error       *string
	DurationMs  *int64
	CreatedAt   time.Time
	FinishedAt  *time.Time
}

// RunEvent is one append-only event log entry.
type RunEvent struct {
	ID        int64
	RunID     string
	Type      string
	Payload   string // JSON-encoded
	CreatedAt time.Time
}

// RunSpec is the input to CreateRunAndSteps.
type RunSpec struct {
	DocHash        string
	WorkflowID     string
	Inputs         string
	CreatedBy      *string
	IdempotencyKey *string
}

// StepSpec is one step's static shape at run-creation time.
type StepSpec struct {
	StepID    string
	StepIndex int
	DependsOn []string
}
