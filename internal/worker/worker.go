// Package worker implements the per-attempt step execution of spec.md
// §4.10: building a request from a compiled operation and step parameters,
// enforcing the policy gate, sending the HTTP exchange, evaluating success
// criteria, and recording the outcome. A Runner performs exactly one
// attempt per call; the scheduler decides when a step is reattempted.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/events"
	"github.com/alirezaght/arazzo/internal/expr"
	"github.com/alirezaght/arazzo/internal/httpclient"
	"github.com/alirezaght/arazzo/internal/openapi"
	"github.com/alirezaght/arazzo/internal/policy"
	"github.com/alirezaght/arazzo/internal/retry"
	"github.com/alirezaght/arazzo/internal/secret"
	"github.com/alirezaght/arazzo/internal/store"
)

// AttemptTimeout is the spec.md §5 per-attempt HTTP deadline.
const AttemptTimeout = 30 * time.Second

// Dependencies bundles everything a Runner needs to drive one attempt.
// Every field is shared, read-only state across concurrently running
// worker tasks within a run (spec.md §9, "ownership of the compiled plan").
type Dependencies struct {
	Store   store.Store
	Sink    events.Sink
	Secrets secret.Provider
	HTTP    *httpclient.Client

	Policy           policy.Config
	PerSourcePolicy  map[string]policy.Config
	Retry            retry.Config
	AllowSecretInURL map[string]bool // source name -> allow secrets in path/query

	Now  func() time.Time
	Rand func() uint64
}

// Runner executes single HTTP attempts for run steps, persisting every
// outcome through Dependencies.Store and Dependencies.Sink.
type Runner struct {
	deps Dependencies
}

// NewRunner builds a Runner, filling in defaults for Now/Rand.
func NewRunner(deps Dependencies) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		src := rand.New(rand.NewSource(time.Now().UnixNano()))
		deps.Rand = func() uint64 { return src.Uint64() }
	}
	return &Runner{deps: deps}
}

// Execute performs exactly one attempt for runStep against the resolved
// operation op. It never returns an error for step-local failures (those
// are absorbed into RunStep/StepAttempt state and events per spec.md §7);
// the returned error is non-nil only for a durable Store failure, which the
// scheduler must propagate per spec.md §7's "Store" error kind.
func (r *Runner) Execute(ctx context.Context, runID string, doc *document.Document, wf *document.Workflow, step *document.Step, inputs map[string]any, runStep *store.RunStep, op *openapi.ResolvedOperation) error {
	r.emit(ctx, runID, events.StepStarted, map[string]any{"step_id": step.StepID})

	if step.IsWorkflowStep() {
		// Sub-workflow invocation is modeled in the graph but not executed
		// by this core engine (spec.md §9, Open Question 4): complete with
		// empty outputs.
		if err := r.deps.Store.MarkStepSucceeded(ctx, runStep.ID, "{}"); err != nil {
			return err
		}
		r.emit(ctx, runID, events.StepSucceeded, map[string]any{"step_id": step.StepID, "outputs": map[string]any{}})
		return nil
	}

	allOutputs, err := r.deps.Store.GetStepOutputs(ctx, runID)
	if err != nil {
		return err
	}
	stepOutputsFn := expr.StepOutputsFunc(func(stepID string) (map[string]any, error) {
		outs, ok := allOutputs[stepID]
		if !ok {
			return nil, fmt.Errorf("step %q has not succeeded", stepID)
		}
		return outs, nil
	})

	evalCtx := &expr.Context{
		Inputs:             inputs,
		Outputs:            map[string]any{},
		Workflows:          workflowsProjection(doc),
		SourceDescriptions: sourceDescriptionsProjection(doc),
		Components:         componentsProjection(doc),
		StepOutputs:        stepOutputsFn,
	}

	effPolicy := r.deps.Policy
	if override, ok := r.deps.PerSourcePolicy[op.SourceName]; ok {
		effPolicy = effPolicy.Overlay(override)
	}
	allowSecretInURL := r.deps.AllowSecretInURL[op.SourceName]

	resolveSecret := func(raw string) (string, error) {
		ref, err := secret.ParseRef(raw)
		if err != nil {
			return "", err
		}
		v, err := r.deps.Secrets.Get(ctx, ref)
		if err != nil {
			return "", err
		}
		s := string(v.Bytes())
		v.Zero()
		return s, nil
	}

	retryAction := findRetryAction(doc, effectiveFailureActions(wf, step))

	built, err := buildRequest(doc, step, op, evalCtx, allowSecretInURL, resolveSecret)
	if err != nil {
		return r.failStep(ctx, runID, doc, step, runStep, "expression", err, true)
	}

	headers := http.Header(built.Headers)
	if denial := policy.CheckRequest(effPolicy, built.Method, built.URL, headers, len(built.Body)); denial != nil {
		r.emit(ctx, runID, events.PolicyDenied, map[string]any{"step_id": step.StepID, "reason": denial.Reason, "phase": "request"})
		return r.failStep(ctx, runID, doc, step, runStep, "policy", denial, true)
	}

	secretHeaderNames := make([]string, 0, len(built.SecretHeaders))
	for name := range built.SecretHeaders {
		secretHeaderNames = append(secretHeaderNames, name)
	}
	reqSnap := policy.Sanitize(effPolicy, built.Headers, built.Body, built.ContainsSecret, secretHeaderNames, effPolicy.MaxRequestBodyBytes)
	reqJSON, _ := json.Marshal(snapshotDTO{Method: built.Method, URL: built.URL, Headers: reqSnap.Headers, Body: string(reqSnap.Body), Truncated: reqSnap.Truncated})

	attempt, err := r.deps.Store.InsertAttempt(ctx, runStep.ID, string(reqJSON))
	if err != nil {
		return err
	}
	r.emit(ctx, runID, events.AttemptStarted, map[string]any{"step_id": step.StepID, "attempt_no": attempt.AttemptNo})

	sendReq := httpclient.Request{
		Method:           built.Method,
		URL:              built.URL,
		Headers:          headers,
		Body:             built.Body,
		Timeout:          AttemptTimeout,
		MaxResponseBytes: int64(effPolicy.MaxResponseBodyBytes),
		AllowRedirects:   effPolicy.AllowRedirects,
	}
	resp, sendErr := r.deps.HTTP.Send(ctx, sendReq)
	if sendErr != nil {
		return r.handleSendError(ctx, runID, doc, wf, step, runStep, attempt, retryAction, sendErr)
	}

	return r.handleResponse(ctx, runID, doc, wf, step, runStep, attempt, retryAction, evalCtx, effPolicy, resp)
}

func (r *Runner) handleSendError(ctx context.Context, runID string, doc *document.Document, wf *document.Workflow, step *document.Step, runStep *store.RunStep, attempt *store.StepAttempt, retryAction *document.Action, sendErr error) error {
	msg := sendErr.Error()
	if err := r.deps.Store.FinishAttempt(ctx, attempt.ID, store.AttemptFailed, nil, &msg, 0); err != nil {
		return err
	}
	r.emit(ctx, runID, events.AttemptFinished, map[string]any{"step_id": step.StepID, "attempt_no": attempt.AttemptNo, "status": "failed", "error": msg})

	decision := retry.Decision{Retry: false, Reason: retry.Reason("no_retry_action")}
	if retryAction != nil {
		decision = retry.Decide(r.deps.Retry, retry.Input{
			AttemptNo:            attempt.AttemptNo,
			ArazzoRetryLimit:     retryAction.RetryLimit,
			ArazzoRetryAfterSecs: retryAction.RetryAfter,
			NetworkFailed:        true,
			RandUint64:           r.deps.Rand,
		})
	}
	return r.applyDecision(ctx, runID, doc, wf, step, runStep, decision, msg)
}

func (r *Runner) handleResponse(ctx context.Context, runID string, doc *document.Document, wf *document.Workflow, step *document.Step, runStep *store.RunStep, attempt *store.StepAttempt, retryAction *document.Action, evalCtx *expr.Context, effPolicy policy.Config, resp *httpclient.Response) error {
	if denial := policy.CheckResponse(effPolicy, resp.Headers, len(resp.Body)); denial != nil {
		msg := denial.Error()
		if err := r.deps.Store.FinishAttempt(ctx, attempt.ID, store.AttemptFailed, nil, &msg, resp.Duration.Milliseconds()); err != nil {
			return err
		}
		r.emit(ctx, runID, events.AttemptFinished, map[string]any{"step_id": step.StepID, "attempt_no": attempt.AttemptNo, "status": "failed", "error": msg})
		r.emit(ctx, runID, events.PolicyDenied, map[string]any{"step_id": step.StepID, "reason": denial.Reason, "phase": "response"})
		return r.failStep(ctx, runID, doc, step, runStep, "policy", denial, true)
	}

	var bodyJSON any
	if json.Unmarshal(resp.Body, &bodyJSON) != nil {
		bodyJSON = nil
	}
	evalCtx.StatusCode = resp.StatusCode
	evalCtx.ResponseHeaders = resp.Headers
	if bodyJSON != nil {
		evalCtx.ResponseBody = bodyJSON
	} else {
		evalCtx.ResponseBody = string(resp.Body)
	}

	success, critErr := evaluateSuccess(step.SuccessCriteria, resp.StatusCode, evalCtx)

	respSnap := policy.Sanitize(effPolicy, resp.Headers, resp.Body, false, nil, effPolicy.MaxResponseBodyBytes)
	respJSON, _ := json.Marshal(snapshotDTO{Status: resp.StatusCode, Headers: respSnap.Headers, Body: string(respSnap.Body), Truncated: respSnap.Truncated})
	respJSONStr := string(respJSON)

	if !success {
		reason := "success criteria not satisfied"
		if critErr != nil {
			reason = fmt.Sprintf("success criteria evaluation error: %v", critErr)
		}
		if err := r.deps.Store.FinishAttempt(ctx, attempt.ID, store.AttemptFailed, &respJSONStr, &reason, resp.Duration.Milliseconds()); err != nil {
			return err
		}
		r.emit(ctx, runID, events.AttemptFinished, map[string]any{"step_id": step.StepID, "attempt_no": attempt.AttemptNo, "status": "failed", "error": reason})

		status := resp.StatusCode
		decision := retry.Decision{Retry: false, Reason: retry.Reason("no_retry_action")}
		if retryAction != nil {
			decision = retry.Decide(r.deps.Retry, retry.Input{
				AttemptNo:            attempt.AttemptNo,
				ArazzoRetryLimit:     retryAction.RetryLimit,
				ArazzoRetryAfterSecs: retryAction.RetryAfter,
				HTTPStatus:           &status,
				Headers:              resp.Headers,
				RandUint64:           r.deps.Rand,
			})
		}
		return r.applyDecision(ctx, runID, doc, wf, step, runStep, decision, reason)
	}

	outputs := map[string]any{}
	for k, v := range step.Outputs {
		val, err := expr.ResolveValue(v, evalCtx)
		if err != nil {
			msg := fmt.Sprintf("output %q: %v", k, err)
			if ferr := r.deps.Store.FinishAttempt(ctx, attempt.ID, store.AttemptFailed, &respJSONStr, &msg, resp.Duration.Milliseconds()); ferr != nil {
				return ferr
			}
			r.emit(ctx, runID, events.AttemptFinished, map[string]any{"step_id": step.StepID, "attempt_no": attempt.AttemptNo, "status": "failed", "error": msg})
			return r.failStep(ctx, runID, doc, step, runStep, "expression", err, true)
		}
		outputs[k] = val
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("marshaling step outputs: %w", err)
	}

	if err := r.deps.Store.FinishAttempt(ctx, attempt.ID, store.AttemptSucceeded, &respJSONStr, nil, resp.Duration.Milliseconds()); err != nil {
		return err
	}
	r.emit(ctx, runID, events.AttemptFinished, map[string]any{"step_id": step.StepID, "attempt_no": attempt.AttemptNo, "status": "succeeded"})

	if err := r.deps.Store.MarkStepSucceeded(ctx, runStep.ID, string(outputsJSON)); err != nil {
		return err
	}
	r.emit(ctx, runID, events.StepSucceeded, map[string]any{"step_id": step.StepID, "outputs": outputs})
	return nil
}

func evaluateSuccess(criteria []document.Criterion, status int, evalCtx *expr.Context) (bool, error) {
	if len(criteria) == 0 {
		return DefaultSuccess(status), nil
	}
	for _, c := range criteria {
		ok, err := EvaluateCriterion(c, evalCtx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// applyDecision schedules a retry or finalizes the step as failed,
// depending on the retry decider's verdict.
func (r *Runner) applyDecision(ctx context.Context, runID string, doc *document.Document, wf *document.Workflow, step *document.Step, runStep *store.RunStep, decision retry.Decision, errMsg string) error {
	if decision.Retry {
		nextRunAt := r.deps.Now().Add(decision.Delay)
		if err := r.deps.Store.ScheduleRetry(ctx, runStep.ID, nextRunAt); err != nil {
			return err
		}
		r.emit(ctx, runID, events.StepRetryScheduled, map[string]any{
			"step_id":  step.StepID,
			"delay_ms": decision.Delay.Milliseconds(),
			"reason":   string(decision.Reason),
		})
		return nil
	}
	endRun := isEndOrDefaultFailure(doc, wf, step)
	return r.failStep(ctx, runID, doc, step, runStep, "stop", errors.New(errMsg), endRun)
}

// failStep marks the step failed (cascading skips via the store), and, if
// the step's effective failure action is "end" or the default (no
// onFailure declared at all), finalizes the whole run as failed
// immediately rather than waiting for the scheduler to observe every step
// terminal (spec.md §4.10 step 10).
func (r *Runner) failStep(ctx context.Context, runID string, doc *document.Document, step *document.Step, runStep *store.RunStep, kind string, cause error, endRun bool) error {
	errObj := map[string]any{"type": kind, "message": cause.Error(), "end_run": endRun}
	errJSON, _ := json.Marshal(errObj)
	if err := r.deps.Store.MarkStepFailed(ctx, runStep.ID, string(errJSON)); err != nil {
		return err
	}
	r.emit(ctx, runID, events.StepFailed, map[string]any{"step_id": step.StepID, "error": errObj})

	if endRun {
		msg := cause.Error()
		if err := r.deps.Store.MarkRunFinished(ctx, runID, store.RunFailed, &msg); err != nil {
			return err
		}
		r.emit(ctx, runID, events.RunFinished, map[string]any{"status": string(store.RunFailed), "step_id": step.StepID})
	}
	return nil
}

func (r *Runner) emit(ctx context.Context, runID string, typ events.Type, payload map[string]any) {
	if r.deps.Sink == nil {
		return
	}
	_ = r.deps.Sink.Emit(ctx, events.New(runID, typ, payload))
}

// snapshotDTO is the JSON shape persisted for both request and response
// attempt snapshots.
type snapshotDTO struct {
	Method    string              `json:"method,omitempty"`
	URL       string              `json:"url,omitempty"`
	Status    int                 `json:"status,omitempty"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Body      string              `json:"body,omitempty"`
	Truncated bool                `json:"truncated,omitempty"`
}

func findRetryAction(doc *document.Document, actions []document.ActionOrReusable) *document.Action {
	for _, a := range actions {
		resolved := resolveFailureAction(doc, a)
		if resolved != nil && resolved.Type == document.ActionRetry {
			return resolved
		}
	}
	return nil
}

// effectiveFailureActions returns a step's own onFailure actions, falling
// back to the enclosing workflow's failureActions when the step declares
// none at all (Arazzo's action-resolution precedence: step overrides
// workflow).
func effectiveFailureActions(wf *document.Workflow, step *document.Step) []document.ActionOrReusable {
	if len(step.OnFailure) > 0 {
		return step.OnFailure
	}
	if wf != nil {
		return wf.FailureActions
	}
	return nil
}

// isEndOrDefaultFailure reports whether a step's failure should finalize
// the whole run immediately: either no onFailure action is declared (on
// the step or its workflow), or, passing over goto actions, the first
// resolvable "end" or "retry" action is an "end", or none resolves.
func isEndOrDefaultFailure(doc *document.Document, wf *document.Workflow, step *document.Step) bool {
	actions := effectiveFailureActions(wf, step)
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		resolved := resolveFailureAction(doc, a)
		if resolved == nil {
			continue
		}
		if resolved.Type == document.ActionEnd {
			return true
		}
		if resolved.Type == document.ActionRetry {
			return false
		}
	}
	return true
}

func resolveFailureAction(doc *document.Document, a document.ActionOrReusable) *document.Action {
	if !a.IsReusable() {
		act := a.Action
		return &act
	}
	if doc.Components == nil {
		return nil
	}
	name := strings.TrimPrefix(a.Reference, "$components.failureActions.")
	act, ok := doc.Components.FailureActions[name]
	if !ok {
		return nil
	}
	return &act
}

func workflowsProjection(doc *document.Document) map[string]any {
	out := map[string]any{}
	arr, _ := doc.Projection["workflows"].([]any)
	for _, raw := range arr {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := m["workflowId"].(string); ok {
			out[id] = m
		}
	}
	return out
}

func sourceDescriptionsProjection(doc *document.Document) map[string]any {
	out := map[string]any{}
	for _, sd := range doc.SourceDescriptions {
		out[sd.Name] = map[string]any{"name": sd.Name, "url": sd.URL, "type": sd.Type}
	}
	return out
}

func componentsProjection(doc *document.Document) map[string]any {
	m, _ := doc.Projection["components"].(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}
