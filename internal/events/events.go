// Package events implements the typed event sink of spec.md §4.11: every
// run/step/attempt state transition is emitted as a structured event to one
// or more sinks (durable store, stdout, webhook, NATS), in addition to being
// durably recorded by internal/store.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Type names the event kinds the executor emits.
type Type string

const (
	RunStarted         Type = "run_started"
	RunFinished        Type = "run_finished"
	RunCanceled        Type = "run_canceled"
	StepStarted        Type = "step_started"
	StepSucceeded      Type = "step_succeeded"
	StepFailed         Type = "step_failed"
	StepSkipped        Type = "step_skipped"
	StepRetryScheduled Type = "step_retry_scheduled"
	AttemptStarted     Type = "attempt_started"
	AttemptFinished    Type = "attempt_finished"
	AttemptRetried     Type = "attempt_retried"
	PolicyDenied       Type = "policy_denied"
)

// Event is one structured occurrence, as delivered to a Sink.
type Event struct {
	RunID     string         `json:"run_id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink receives events as they occur. Implementations must not block the
// caller for long; slow sinks should buffer internally.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// New builds an Event with the given run id, type and payload.
func New(runID string, typ Type, payload map[string]any) Event {
	return Event{RunID: runID, Type: typ, Timestamp: time.Now(), Payload: payload}
}

// Marshal encodes an event's payload as JSON, for persistence as a RunEvent.
func Marshal(ev Event) (string, error) {
	b, err := json.Marshal(ev.Payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Composite fans an event out to every wrapped sink, collecting (not
// aborting on) individual failures.
type Composite struct {
	Sinks []Sink
}

// NewComposite builds a fan-out sink over the given sinks.
func NewComposite(sinks ...Sink) *Composite { return &Composite{Sinks: sinks} }

func (c *Composite) Emit(ctx context.Context, ev Event) error {
	var firstErr error
	for _, s := range c.Sinks {
		if err := s.Emit(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
