package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/alirezaght/arazzo/internal/config"
	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/events"
	"github.com/alirezaght/arazzo/internal/httpclient"
	"github.com/alirezaght/arazzo/internal/openapi"
	"github.com/alirezaght/arazzo/internal/plan"
	"github.com/alirezaght/arazzo/internal/scheduler"
	"github.com/alirezaght/arazzo/internal/secret"
	"github.com/alirezaght/arazzo/internal/store"
	"github.com/alirezaght/arazzo/internal/store/sqlite"
	"github.com/alirezaght/arazzo/internal/validate"
	"github.com/alirezaght/arazzo/internal/worker"
)

// loadDocument reads and parses an Arazzo document from path, per
// spec.md §4.1's JSON/YAML auto-detecting parser.
func loadDocument(path string) (*document.Document, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, raw, nil
}

// openStore opens the sqlite-backed store.Store at the configured database
// path, applying pending migrations.
func openStore() (store.Store, error) {
	driver := sqlite.PureGoDriver
	if cfg.UseCGOSQLite {
		driver = sqlite.CGODriver
	}
	db, err := sqlite.Open(cfg.Database, driver)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return sqlite.New(db), nil
}

// compiledWorkflow bundles everything execute/resume need to build a
// Scheduler for one workflow execution.
type compiledWorkflow struct {
	Doc       *document.Document
	Workflow  *document.Workflow
	Plan      *plan.Plan
	StepsByID map[string]*document.Step
	OpsByID   map[string]*openapi.ResolvedOperation
}

// compile validates doc, selects/plans workflowID against inputs, and
// resolves every operation step against its OpenAPI source, per
// spec.md §4.3/§4.4. It fails closed: any validation violation or
// step-level compile error aborts before a run is created.
func compile(ctx context.Context, doc *document.Document, workflowID string, inputs map[string]any) (*compiledWorkflow, error) {
	if violations := validate.Validate(doc); len(violations) > 0 {
		return nil, validationFailed(fmt.Errorf("document invalid: %s", validate.Format(violations)))
	}

	p, err := plan.Build(doc, workflowID, inputs)
	if err != nil {
		return nil, validationFailed(err)
	}

	var workflow *document.Workflow
	for i := range doc.Workflows {
		if doc.Workflows[i].WorkflowID == p.Summary.WorkflowID {
			workflow = &doc.Workflows[i]
			break
		}
	}
	if workflow == nil {
		return nil, validationFailed(fmt.Errorf("workflow %q not found", p.Summary.WorkflowID))
	}

	stepsByID := make(map[string]*document.Step, len(workflow.Steps))
	for i := range workflow.Steps {
		stepsByID[workflow.Steps[i].StepID] = &workflow.Steps[i]
	}

	loader := openapi.NewLoader()
	sources := make(map[string]*openapi.Source, len(doc.SourceDescriptions))
	for _, sd := range doc.SourceDescriptions {
		src, err := loader.Load(ctx, sd)
		if err != nil {
			return nil, validationFailed(err)
		}
		sources[sd.Name] = src
	}
	compiler := openapi.NewCompiler(sources)

	opsByID := make(map[string]*openapi.ResolvedOperation, len(workflow.Steps))
	for i := range workflow.Steps {
		s := &workflow.Steps[i]
		if !s.IsOperationStep() {
			continue
		}
		resolved := compiler.Resolve(s)
		if resolved.HasErrors() {
			return nil, validationFailed(fmt.Errorf("step %q: compile failed: %+v", s.StepID, resolved.Diagnostics))
		}
		opsByID[s.StepID] = resolved
	}

	return &compiledWorkflow{Doc: doc, Workflow: workflow, Plan: p, StepsByID: stepsByID, OpsByID: opsByID}, nil
}

// buildSink composes the run's event sink: every run emits through the
// durable store sink, plus stdout unless suppressed.
func buildSink(st store.Store, logger *log.Logger, quiet bool) events.Sink {
	sinks := []events.Sink{events.NewStoreSink(st)}
	if !quiet {
		sinks = append(sinks, events.NewStdoutSink(logger))
	}
	return events.NewComposite(sinks...)
}

// buildSecretProvider composes the built-in env/file providers behind the
// TTL+LRU caching layer of spec.md §4.7.
func buildSecretProvider() secret.Provider {
	providers := []secret.Provider{secret.NewEnvProvider(cfg.Secret.EnvPrefix)}
	if cfg.Secret.FileBaseDir != "" {
		providers = append(providers, secret.NewFileProvider(cfg.Secret.FileBaseDir))
	}
	composite := secret.NewCompositeProvider(providers...)
	return secret.NewCachingProvider(composite, cfg.Secret.ToCacheConfig())
}

// newScheduler wires a Scheduler over a compiled workflow, ready to drive a
// run to completion.
func newScheduler(st store.Store, cw *compiledWorkflow, sink events.Sink, inputs map[string]any) *scheduler.Scheduler {
	logger := log.Default()
	runner := worker.NewRunner(worker.Dependencies{
		Store:   st,
		Sink:    sink,
		Secrets: buildSecretProvider(),
		HTTP:    httpclient.New(),
		Policy:  cfg.Policy.ToPolicyConfig(),
		Retry:   cfg.Retry.ToRetryConfig(),
	})

	return &scheduler.Scheduler{
		Store:     st,
		Runner:    runner,
		Sink:      sink,
		Logger:    logger,
		Doc:       cw.Doc,
		Workflow:  cw.Workflow,
		Inputs:    inputs,
		StepsByID: cw.StepsByID,
		OpsByID:   cw.OpsByID,
		Config:    cfg.ToSchedulerConfig(),
	}
}

// newIdempotencyKey generates a fresh idempotency key for an interactively
// started run that didn't supply one, mirroring the teacher's use of
// google/uuid for correlation ids that don't need ULID ordering.
func newIdempotencyKey() string { return uuid.NewString() }
