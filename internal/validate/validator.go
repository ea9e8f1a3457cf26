// Package validate implements the structural and semantic checks of
// spec.md §4.2: consuming a parsed document and producing an ordered list
// of violations. Violations never abort parsing.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/expr"
)

// Violation is a single validation failure at a document path.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Format renders a violation list as "path: message" entries joined with
// "; " on a single line, for CLI/log output.
func Format(violations []Violation) string {
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = fmt.Sprintf("%s: %s", v.Path, v.Message)
	}
	return strings.Join(lines, "; ")
}

var idRe = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
var keyRe = regexp.MustCompile(`^[a-zA-Z0-9.\-_]+$`)

// Validate runs every rule in spec.md §4.2 and returns the full set of
// violations found (possibly empty).
func Validate(doc *document.Document) []Violation {
	v := &validator{doc: doc}
	v.checkVersion()
	v.checkInfo()
	v.checkSourceDescriptions()
	v.checkWorkflows()
	return v.violations
}

type validator struct {
	doc        *document.Document
	violations []Violation
}

func (v *validator) add(path, format string, args ...any) {
	v.violations = append(v.violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

var versionRe = regexp.MustCompile(`^1\.0\.\d+(-.+)?$`)

func (v *validator) checkVersion() {
	if !versionRe.MatchString(v.doc.Arazzo) {
		v.add("$.arazzo", "arazzo version must match major.minor 1.0, got %q", v.doc.Arazzo)
	}
}

func (v *validator) checkInfo() {
	if strings.TrimSpace(v.doc.Info.Title) == "" {
		v.add("$.info.title", "info.title must not be empty")
	}
	if strings.TrimSpace(v.doc.Info.Version) == "" {
		v.add("$.info.version", "info.version must not be empty")
	}
}

func (v *validator) checkSourceDescriptions() {
	if len(v.doc.SourceDescriptions) == 0 {
		v.add("$.sourceDescriptions", "at least one source description is required")
	}
	seen := map[string]bool{}
	for i, sd := range v.doc.SourceDescriptions {
		path := fmt.Sprintf("$.sourceDescriptions[%d]", i)
		if !idRe.MatchString(sd.Name) {
			v.add(path+".name", "source description name %q must match [A-Za-z0-9_-]+", sd.Name)
		}
		if seen[sd.Name] {
			v.add(path+".name", "duplicate source description name %q", sd.Name)
		}
		seen[sd.Name] = true
	}
}

func (v *validator) checkWorkflows() {
	if len(v.doc.Workflows) == 0 {
		v.add("$.workflows", "at least one workflow is required")
		return
	}

	workflowIDs := map[string]bool{}
	for _, w := range v.doc.Workflows {
		workflowIDs[w.WorkflowID] = true
	}

	seenWF := map[string]bool{}
	for wi, w := range v.doc.Workflows {
		wpath := fmt.Sprintf("$.workflows[%d]", wi)
		if !idRe.MatchString(w.WorkflowID) {
			v.add(wpath+".workflowId", "workflow id %q must match [A-Za-z0-9_-]+", w.WorkflowID)
		}
		if seenWF[w.WorkflowID] {
			v.add(wpath+".workflowId", "duplicate workflow id %q", w.WorkflowID)
		}
		seenWF[w.WorkflowID] = true

		for _, dep := range w.DependsOn {
			if expr.IsRuntimeExpression(dep) {
				if e, err := expr.Parse(dep); err != nil || e.Kind != expr.KindSourceDescriptions {
					v.add(wpath+".dependsOn", "dependsOn entry %q must be a local workflowId or $sourceDescriptions.* expression", dep)
				}
				continue
			}
			if !workflowIDs[dep] {
				v.add(wpath+".dependsOn", "dependsOn entry %q does not reference a local workflowId", dep)
			}
		}

		v.checkSteps(wpath, &w)
		v.checkActionList(wpath+".successActions", w.SuccessActions, true)
		v.checkActionList(wpath+".failureActions", w.FailureActions, false)
		v.checkOutputKeys(wpath+".outputs", w.Outputs)
	}

	v.checkComponents()
}

func (v *validator) checkSteps(wpath string, w *document.Workflow) {
	stepIDs := map[string]bool{}
	for i := range w.Steps {
		stepIDs[w.Steps[i].StepID] = true
	}

	seen := map[string]bool{}
	for si := range w.Steps {
		s := &w.Steps[si]
		spath := fmt.Sprintf("%s.steps[%d]", wpath, si)
		if !idRe.MatchString(s.StepID) {
			v.add(spath+".stepId", "step id %q must match [A-Za-z0-9_-]+", s.StepID)
		}
		if seen[s.StepID] {
			v.add(spath+".stepId", "duplicate step id %q", s.StepID)
		}
		seen[s.StepID] = true

		v.checkTargetExclusivity(spath, s)
		v.checkParameters(spath, s)
		v.checkRequestBody(spath, s)
		v.checkSuccessCriteria(spath, s)
		v.checkActionList(spath+".onSuccess", s.OnSuccess, true)
		v.checkActionListSteps(spath+".onFailure", s.OnFailure, stepIDs)
		v.checkOutputKeys(spath+".outputs", s.Outputs)
	}
}

func (v *validator) checkTargetExclusivity(spath string, s *document.Step) {
	count := 0
	if s.OperationID != "" {
		count++
	}
	if s.OperationPath != "" {
		count++
	}
	if s.WorkflowID != "" {
		count++
	}
	if count != 1 {
		v.add(spath, "step must have exactly one of operationId, operationPath, workflowId (has %d)", count)
	}
	if s.OperationPath != "" {
		if !strings.Contains(s.OperationPath, "$sourceDescriptions.") || !strings.Contains(s.OperationPath, ".url") {
			v.add(spath+".operationPath", "operationPath must reference $sourceDescriptions.<name>.url")
		}
		if !expr.IsRuntimeExpression(s.OperationPath) && !expr.IsTemplate(s.OperationPath) {
			v.add(spath+".operationPath", "operationPath must be a valid runtime expression or template")
		} else if expr.IsRuntimeExpression(s.OperationPath) {
			if _, err := expr.Parse(s.OperationPath); err != nil {
				v.add(spath+".operationPath", "invalid runtime expression: %v", err)
			}
		} else if _, err := expr.ParseTemplate(s.OperationPath); err != nil {
			v.add(spath+".operationPath", "invalid template: %v", err)
		}
	}
}

func (v *validator) checkParameters(spath string, s *document.Step) {
	isWorkflowTarget := s.WorkflowID != ""
	seen := map[[2]string]bool{}
	for pi, p := range s.Parameters {
		ppath := fmt.Sprintf("%s.parameters[%d]", spath, pi)
		if p.IsReusable() {
			if !strings.HasPrefix(p.Reference, "$components.parameters.") {
				v.add(ppath+".reference", "reusable parameter reference must start with $components.parameters.")
			}
			continue
		}
		if isWorkflowTarget {
			if p.In != "" {
				v.add(ppath+".in", "parameter.in must be absent when step targets a workflow")
			}
		} else if p.In != "path" && p.In != "query" && p.In != "header" && p.In != "cookie" {
			v.add(ppath+".in", "parameter.in must be one of path|query|header|cookie, got %q", p.In)
		}
		key := [2]string{p.Name, p.In}
		if seen[key] {
			v.add(ppath, "duplicate parameter (name=%q, in=%q)", p.Name, p.In)
		}
		seen[key] = true
		v.checkExpressionValue(ppath+".value", p.Value)
	}
}

func (v *validator) checkRequestBody(spath string, s *document.Step) {
	if s.RequestBody == nil {
		return
	}
	v.checkExpressionValue(spath+".requestBody.payload", s.RequestBody.Payload)
	for ri, r := range s.RequestBody.Replacements {
		v.checkExpressionValue(fmt.Sprintf("%s.requestBody.replacements[%d].value", spath, ri), r.Value)
	}
}

func (v *validator) checkExpressionValue(path string, val any) {
	s, ok := val.(string)
	if !ok {
		return
	}
	if expr.IsRuntimeExpression(s) {
		if _, err := expr.Parse(s); err != nil {
			v.add(path, "invalid runtime expression: %v", err)
		}
		return
	}
	if expr.IsTemplate(s) {
		if _, err := expr.ParseTemplate(s); err != nil {
			v.add(path, "invalid template: %v", err)
		}
	}
}

func (v *validator) checkSuccessCriteria(spath string, s *document.Step) {
	for ci, c := range s.SuccessCriteria {
		cpath := fmt.Sprintf("%s.successCriteria[%d]", spath, ci)
		v.checkCriterion(cpath, c)
	}
}

func (v *validator) checkCriterion(cpath string, c document.Criterion) {
	switch c.EffectiveType() {
	case document.CriterionSimple:
		if c.Context != "" {
			v.add(cpath+".context", "criterion type=simple must not declare a context")
		}
	case document.CriterionRegex, document.CriterionJSONPath, document.CriterionXPath, document.CriterionCustom:
		if strings.TrimSpace(c.Context) == "" {
			v.add(cpath+".context", "criterion type=%s requires a non-empty context", c.Type)
		} else if !expr.IsRuntimeExpression(c.Context) {
			v.add(cpath+".context", "criterion context must be a runtime expression")
		} else if _, err := expr.Parse(c.Context); err != nil {
			v.add(cpath+".context", "invalid context expression: %v", err)
		}
		if c.Type == document.CriterionCustom {
			if c.Version != "draft-goessner-dispatch-jsonpath-00" {
				v.add(cpath+".version", "custom jsonpath criteria must use version draft-goessner-dispatch-jsonpath-00")
			}
		}
		if c.Type == document.CriterionXPath {
			switch c.Version {
			case "xpath-10", "xpath-20", "xpath-30", "":
			default:
				v.add(cpath+".version", "xpath criteria must use version xpath-10, xpath-20, or xpath-30")
			}
		}
	}
}

func (v *validator) checkActionList(path string, actions []document.ActionOrReusable, isSuccess bool) {
	for i, a := range actions {
		apath := fmt.Sprintf("%s[%d]", path, i)
		if a.IsReusable() {
			prefix := "$components.failureActions."
			if isSuccess {
				prefix = "$components.successActions."
			}
			if !strings.HasPrefix(a.Reference, prefix) {
				v.add(apath+".reference", "reusable action reference must start with %s", prefix)
			}
			continue
		}
		v.checkActionWiring(apath, a.Action, isSuccess, nil)
	}
}

func (v *validator) checkActionListSteps(path string, actions []document.ActionOrReusable, stepIDs map[string]bool) {
	for i, a := range actions {
		apath := fmt.Sprintf("%s[%d]", path, i)
		if a.IsReusable() {
			if !strings.HasPrefix(a.Reference, "$components.failureActions.") {
				v.add(apath+".reference", "reusable action reference must start with $components.failureActions.")
			}
			continue
		}
		v.checkActionWiring(apath, a.Action, false, stepIDs)
	}
}

func (v *validator) checkActionWiring(apath string, a document.Action, isSuccess bool, stepIDs map[string]bool) {
	switch a.Type {
	case document.ActionEnd:
		if a.StepID != "" || a.WorkflowID != "" {
			v.add(apath, "type=end forbids goto targets")
		}
		if a.RetryAfter != nil || a.RetryLimit != nil {
			v.add(apath, "type=end forbids retry metadata")
		}
	case document.ActionGoto:
		count := 0
		if a.StepID != "" {
			count++
		}
		if a.WorkflowID != "" {
			count++
		}
		if count != 1 {
			v.add(apath, "type=goto requires exactly one of stepId/workflowId")
		}
		if a.StepID != "" && stepIDs != nil && !stepIDs[a.StepID] {
			v.add(apath+".stepId", "goto stepId %q does not exist in this workflow", a.StepID)
		}
	case document.ActionRetry:
		if isSuccess {
			v.add(apath+".type", "type=retry is not valid for success actions")
		}
		if a.WorkflowID != "" && a.StepID != "" {
			v.add(apath, "type=retry may not set both workflowId and stepId")
		}
		if a.RetryAfter != nil && *a.RetryAfter < 0 {
			v.add(apath+".retryAfter", "retryAfter must be >= 0")
		}
	default:
		v.add(apath+".type", "unknown action type %q", a.Type)
	}
}

func (v *validator) checkOutputKeys(path string, outputs map[string]string) {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !keyRe.MatchString(k) {
			v.add(path, "output key %q must match [a-zA-Z0-9.\\-_]+", k)
		}
		v.checkExpressionValue(fmt.Sprintf("%s.%s", path, k), outputs[k])
	}
}

func (v *validator) checkComponents() {
	if v.doc.Components == nil {
		return
	}
	v.checkComponentKeys("$.components.parameters", v.doc.Components.Parameters)
	v.checkComponentActionKeys("$.components.successActions", v.doc.Components.SuccessActions)
	v.checkComponentActionKeys("$.components.failureActions", v.doc.Components.FailureActions)
}

func (v *validator) checkComponentKeys(path string, m map[string]document.Parameter) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !keyRe.MatchString(k) {
			v.add(path, "component key %q must match [a-zA-Z0-9.\\-_]+", k)
		}
	}
}

func (v *validator) checkComponentActionKeys(path string, m map[string]document.Action) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !keyRe.MatchString(k) {
			v.add(path, "component key %q must match [a-zA-Z0-9.\\-_]+", k)
		}
	}
}
