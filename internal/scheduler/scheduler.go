// Package scheduler implements the durable per-run scheduler of spec.md
// §4.9: a cooperative, single-logical-thread claim loop that spawns a
// concurrency-bounded worker task per ready step and drives a run to
// completion, surviving process restarts via the state store.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/events"
	"github.com/alirezaght/arazzo/internal/openapi"
	"github.com/alirezaght/arazzo/internal/store"
	"github.com/alirezaght/arazzo/internal/worker"
)

// DefaultPollInterval is the idle sleep between claim attempts when no step
// is ready (spec.md §4.9: "100-200ms").
const DefaultPollInterval = 150 * time.Millisecond

// DefaultGlobalConcurrency is the spec's documented per-run worker cap
// (spec.md §5).
const DefaultGlobalConcurrency = 10

// DefaultStaleResetAfter bounds how long a "running" step is trusted
// before a resumed scheduler reclaims it back to pending.
const DefaultStaleResetAfter = 10 * time.Minute

// DefaultRunTimeout is the spec's documented upper bound on total run time
// (spec.md §5).
const DefaultRunTimeout = time.Hour

// Config parametrizes a Scheduler.
type Config struct {
	GlobalConcurrency    int
	PerSourceConcurrency map[string]int
	PollInterval         time.Duration
	RunTimeout           time.Duration // 0 disables the per-run deadline
}

// DefaultConfig returns the spec's documented concurrency/timing defaults.
func DefaultConfig() Config {
	return Config{
		GlobalConcurrency: DefaultGlobalConcurrency,
		PollInterval:      DefaultPollInterval,
		RunTimeout:        DefaultRunTimeout,
	}
}

// Scheduler drives a single run to a terminal state. The compiled
// document/workflow/operations are immutable, read-only shared state
// across every worker task it spawns for the run's lifetime (spec.md §9).
type Scheduler struct {
	Store  store.Store
	Runner *worker.Runner
	Sink   events.Sink
	Logger *log.Logger

	Doc       *document.Document
	Workflow  *document.Workflow
	Inputs    map[string]any
	StepsByID map[string]*document.Step
	OpsByID   map[string]*openapi.ResolvedOperation

	Config Config

	once      sync.Once
	global    chan struct{}
	perSource map[string]chan struct{}
}

func (s *Scheduler) init() {
	s.once.Do(func() {
		if s.Config.GlobalConcurrency <= 0 {
			s.Config.GlobalConcurrency = DefaultGlobalConcurrency
		}
		if s.Config.PollInterval <= 0 {
			s.Config.PollInterval = DefaultPollInterval
		}
		s.global = make(chan struct{}, s.Config.GlobalConcurrency)
		s.perSource = make(map[string]chan struct{}, len(s.Config.PerSourceConcurrency))
		for name, n := range s.Config.PerSourceConcurrency {
			if n > 0 {
				s.perSource[name] = make(chan struct{}, n)
			}
		}
		if s.Logger == nil {
			s.Logger = log.Default()
		}
	})
}

// Run drives runID to a terminal state, per the loop in spec.md §4.9. It
// returns a non-nil error only for a durable Store failure (spec.md §7's
// "Store" error kind); every step-local failure is absorbed into run/step
// state and events.
func (s *Scheduler) Run(ctx context.Context, runID string) error {
	s.init()

	if s.Config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.RunTimeout)
		defer cancel()
	}

	if err := s.Store.MarkRunStarted(ctx, runID); err != nil {
		return err
	}
	s.emit(ctx, runID, events.RunStarted, map[string]any{"workflow_id": s.Workflow.WorkflowID})

	for {
		run, err := s.Store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if isTerminalRunStatus(run.Status) {
			return nil
		}

		claimed, err := s.Store.ClaimRunnableSteps(ctx, runID, s.Config.GlobalConcurrency, time.Now())
		if err != nil {
			return err
		}

		if len(claimed) == 0 {
			done, status, err := s.allTerminal(ctx, runID)
			if err != nil {
				return err
			}
			if done {
				return s.finish(ctx, runID, status)
			}
			select {
			case <-ctx.Done():
				return s.handleDeadline(runID)
			case <-time.After(s.Config.PollInterval):
			}
			continue
		}

		if err := s.runBatch(ctx, runID, claimed); err != nil {
			return err
		}
	}
}

// Resume reclaims runID's steps stranded in "running" by a crashed prior
// process (spec.md §5, Crash & resume) before driving runID via Run. The
// reset is scoped to runID per the store contract (spec.md §4.8): other
// runs' steps, even ones genuinely still running elsewhere, are untouched.
func (s *Scheduler) Resume(ctx context.Context, runID string, staleAfter time.Duration) error {
	s.init()
	if staleAfter <= 0 {
		staleAfter = DefaultStaleResetAfter
	}
	n, err := s.Store.ResetStaleRunningSteps(ctx, runID, time.Now().Add(-staleAfter))
	if err != nil {
		return err
	}
	if n > 0 {
		s.Logger.Info("reclaimed stale running steps", "run_id", runID, "count", n)
	}
	return s.Run(ctx, runID)
}

// Cancel transitions a run to canceled and its non-terminal steps to
// skipped. The
// scheduler observes this at the top of its next loop iteration and stops
// claiming new steps; in-flight workers finish their current attempt.
func (s *Scheduler) Cancel(ctx context.Context, runID string) error {
	if err := s.Store.CancelRun(ctx, runID); err != nil {
		return err
	}
	s.emit(ctx, runID, events.RunCanceled, map[string]any{})
	return nil
}

func (s *Scheduler) runBatch(ctx context.Context, runID string, claimed []store.RunStep) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(claimed))

	for i := range claimed {
		rs := claimed[i]
		step, ok := s.StepsByID[rs.StepID]
		if !ok {
			errCh <- fmt.Errorf("scheduler: step %q not found in compiled document", rs.StepID)
			continue
		}
		op := s.OpsByID[rs.StepID]

		wg.Add(1)
		go func(rs store.RunStep, step *document.Step, op *openapi.ResolvedOperation) {
			defer wg.Done()

			sourceName := ""
			if op != nil {
				sourceName = op.SourceName
			}
			release, err := s.acquire(ctx, sourceName)
			if err != nil {
				return
			}
			defer release()

			if err := s.Runner.Execute(ctx, runID, s.Doc, s.Workflow, step, s.Inputs, &rs, op); err != nil {
				errCh <- err
			}
		}(rs, step, op)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// acquire takes the global permit, then (acquisition order: global then
// source, per spec.md §5) the per-source permit if the source has a
// configured limit. The returned release func always releases whatever was
// actually acquired.
func (s *Scheduler) acquire(ctx context.Context, sourceName string) (func(), error) {
	select {
	case s.global <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}

	sem, hasSourceLimit := s.perSource[sourceName]
	if sourceName == "" || !hasSourceLimit {
		return func() { <-s.global }, nil
	}

	select {
	case sem <- struct{}{}:
		return func() { <-sem; <-s.global }, nil
	case <-ctx.Done():
		<-s.global
		return func() {}, ctx.Err()
	}
}

func (s *Scheduler) allTerminal(ctx context.Context, runID string) (bool, store.RunStatus, error) {
	steps, err := s.Store.ListSteps(ctx, runID)
	if err != nil {
		return false, "", err
	}
	status := store.RunSucceeded
	for _, st := range steps {
		switch st.Status {
		case store.StepSucceeded, store.StepSkipped:
			continue
		case store.StepFailed:
			status = store.RunFailed
		default:
			return false, "", nil
		}
	}
	return true, status, nil
}

func (s *Scheduler) finish(ctx context.Context, runID string, status store.RunStatus) error {
	run, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if isTerminalRunStatus(run.Status) {
		// Already finalized, e.g. by a worker's end_run fast path.
		return nil
	}
	if err := s.Store.MarkRunFinished(ctx, runID, status, nil); err != nil {
		return err
	}
	s.emit(ctx, runID, events.RunFinished, map[string]any{"status": string(status)})
	return nil
}

// handleDeadline finalizes runID as failed when the run-level timeout
// fires, using a background context since ctx is already done.
func (s *Scheduler) handleDeadline(runID string) error {
	bg := context.Background()
	run, err := s.Store.GetRun(bg, runID)
	if err != nil {
		return err
	}
	if isTerminalRunStatus(run.Status) {
		return nil
	}
	msg := "run exceeded its configured timeout"
	if err := s.Store.MarkRunFinished(bg, runID, store.RunFailed, &msg); err != nil {
		return err
	}
	s.emit(bg, runID, events.RunFinished, map[string]any{"status": string(store.RunFailed), "reason": msg})
	return nil
}

func isTerminalRunStatus(status store.RunStatus) bool {
	switch status {
	case store.RunSucceeded, store.RunFailed, store.RunCanceled:
		return true
	default:
		return false
	}
}

func (s *Scheduler) emit(ctx context.Context, runID string, typ events.Type, payload map[string]any) {
	if s.Sink == nil {
		return
	}
	_ = s.Sink.Emit(ctx, events.New(runID, typ, payload))
}
