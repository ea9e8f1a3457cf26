// Package plan implements the step dependency planner of spec.md §4.3:
// selecting a workflow, scanning every step's expressions for upstream
// step/input references, and producing a deterministic topologically
// sorted DAG with parallelizable levels.
package plan

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/alirezaght/arazzo/internal/document"
)

// CycleDetected is returned when the step dependency graph has no total
// topological order.
type CycleDetected struct {
	Remaining []string
}

func (e *CycleDetected) Error() string {
	return fmt.Sprintf("cycle detected among steps: %s", strings.Join(e.Remaining, ", "))
}

// PlannedStep is the planner's per-step output.
type PlannedStep struct {
	StepID           string   `json:"stepId"`
	StepIndex        int      `json:"stepIndex"`
	DependsOn        []string `json:"dependsOn"`
	ReferencedInputs []string `json:"referencedInputs"`
	MissingInputs    []string `json:"missingInputs"`
}

// Graph is the dependency DAG shape.
type Graph struct {
	DependsOn map[string][]string `json:"dependsOn"`
	TopoOrder []string            `json:"topoOrder"`
	Levels    [][]string          `json:"levels"`
}

// Summary is a short description of the selected workflow.
type Summary struct {
	WorkflowID string `json:"workflowId"`
	StepCount  int    `json:"stepCount"`
}

// Plan is the planner's complete output.
type Plan struct {
	Summary       Summary       `json:"summary"`
	Graph         Graph         `json:"graph"`
	Steps         []PlannedStep `json:"steps"`
	MissingInputs []string      `json:"missingInputs"`
}

var stepRefRe = regexp.MustCompile(`\$steps\.([A-Za-z0-9\-_]+)`)
var inputRefRe = regexp.MustCompile(`\$inputs\.([A-Za-z0-9.\-_]+)`)

// Build selects a workflow (by id, or the document's sole workflow if id is
// empty) and produces its execution plan against the given concrete inputs.
func Build(doc *document.Document, workflowID string, inputs map[string]any) (*Plan, error) {
	w, err := selectWorkflow(doc, workflowID)
	if err != nil {
		return nil, err
	}

	stepIDs := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		stepIDs[s.StepID] = true
	}

	dependsOn := make(map[string][]string, len(w.Steps))
	planned := make([]PlannedStep, 0, len(w.Steps))
	allMissing := map[string]bool{}

	for idx, s := range w.Steps {
		refs := scanStep(doc, &s)

		stepRefs := map[string]bool{}
		inputRefs := map[string]bool{}
		for _, r := range refs {
			for _, m := range stepRefRe.FindAllStringSubmatch(r, -1) {
				stepRefs[m[1]] = true
			}
			for _, m := range inputRefRe.FindAllStringSubmatch(r, -1) {
				inputRefs[m[1]] = true
			}
		}

		var deps []string
		for id := range stepRefs {
			if stepIDs[id] && id != s.StepID {
				deps = append(deps, id)
			}
		}
		sort.Strings(deps)
		dependsOn[s.StepID] = deps

		var referenced, missing []string
		for name := range inputRefs {
			referenced = append(referenced, name)
			if !inputSatisfied(inputs, name) {
				missing = append(missing, name)
				allMissing[name] = true
			}
		}
		sort.Strings(referenced)
		sort.Strings(missing)

		planned = append(planned, PlannedStep{
			StepID:           s.StepID,
			StepIndex:        idx,
			DependsOn:        deps,
			ReferencedInputs: referenced,
			MissingInputs:    missing,
		})
	}

	topo, err := topoSort(stepIDs, dependsOn)
	if err != nil {
		return nil, err
	}
	levels := computeLevels(topo, dependsOn)

	missingList := make([]string, 0, len(allMissing))
	for k := range allMissing {
		missingList = append(missingList, k)
	}
	sort.Strings(missingList)

	return &Plan{
		Summary: Summary{WorkflowID: w.WorkflowID, StepCount: len(w.Steps)},
		Graph: Graph{
			DependsOn: dependsOn,
			TopoOrder: topo,
			Levels:    levels,
		},
		Steps:         planned,
		MissingInputs: missingList,
	}, nil
}

func selectWorkflow(doc *document.Document, workflowID string) (*document.Workflow, error) {
	if workflowID != "" {
		w, ok := doc.FindWorkflow(workflowID)
		if !ok {
			return nil, fmt.Errorf("workflow %q not found", workflowID)
		}
		return w, nil
	}
	if len(doc.Workflows) != 1 {
		return nil, fmt.Errorf("workflow id must be specified when document has %d workflows", len(doc.Workflows))
	}
	return &doc.Workflows[0], nil
}

// scanStep returns every raw string value on the step worth scanning for
// embedded $steps.*/$inputs.* references: parameters (with reusables
// resolved), outputs, the operation target strings, request body
// payload/replacements, and success-criteria context/condition.
func scanStep(doc *document.Document, s *document.Step) []string {
	var out []string
	add := func(v any) {
		if str, ok := v.(string); ok && str != "" {
			out = append(out, str)
		}
	}

	add(s.OperationID)
	add(s.OperationPath)
	add(s.WorkflowID)

	for _, p := range s.Parameters {
		if p.IsReusable() {
			if rp, ok := resolveReusableParameter(doc, p.Reference); ok {
				addValue(&out, rp.Value)
			}
			continue
		}
		addValue(&out, p.Value)
	}

	if s.RequestBody != nil {
		addValue(&out, s.RequestBody.Payload)
		for _, r := range s.RequestBody.Replacements {
			addValue(&out, r.Value)
		}
	}

	for _, c := range s.SuccessCriteria {
		add(c.Context)
		add(c.Condition)
	}

	for k, v := range s.Outputs {
		_ = k
		add(v)
	}

	return out
}

func addValue(out *[]string, v any) {
	switch t := v.(type) {
	case string:
		if t != "" {
			*out = append(*out, t)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addValue(out, t[k])
		}
	case []any:
		for _, e := range t {
			addValue(out, e)
		}
	}
}

func resolveReusableParameter(doc *document.Document, ref string) (document.Parameter, bool) {
	if doc.Components == nil || !strings.HasPrefix(ref, "$components.parameters.") {
		return document.Parameter{}, false
	}
	name := strings.TrimPrefix(ref, "$components.parameters.")
	p, ok := doc.Components.Parameters[name]
	return p, ok
}

func inputSatisfied(inputs map[string]any, name string) bool {
	if inputs == nil {
		return false
	}
	parts := strings.Split(name, ".")
	var cur any = inputs
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		next, present := m[p]
		if !present {
			return false
		}
		cur = next
	}
	return true
}

func topoSort(stepIDs map[string]bool, dependsOn map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(stepIDs))
	children := make(map[string][]string, len(stepIDs))
	for id := range stepIDs {
		indegree[id] = 0
	}
	for id, deps := range dependsOn {
		indegree[id] = len(deps)
		for _, d := range deps {
			children[d] = append(children[d], id)
		}
	}

	var order []string
	for len(order) < len(stepIDs) {
		var frontier []string
		for id, deg := range indegree {
			if deg == 0 {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			var remaining []string
			for id := range indegree {
				remaining = append(remaining, id)
			}
			sort.Strings(remaining)
			return nil, &CycleDetected{Remaining: remaining}
		}
		sort.Strings(frontier)
		next := frontier[0]
		order = append(order, next)
		delete(indegree, next)
		for _, c := range children[next] {
			if _, ok := indegree[c]; ok {
				indegree[c]--
			}
		}
	}
	return order, nil
}

func computeLevels(topo []string, dependsOn map[string][]string) [][]string {
	levelOf := make(map[string]int, len(topo))
	for _, id := range topo {
		max := -1
		for _, d := range dependsOn[id] {
			if l, ok := levelOf[d]; ok && l > max {
				max = l
			}
		}
		levelOf[id] = max + 1
	}

	maxLevel := -1
	for _, l := range levelOf {
		if l > maxLevel {
			maxLevel = l
		}
	}
	levels := make([][]string, maxLevel+1)
	for _, id := range topo {
		l := levelOf[id]
		levels[l] = append(levels[l], id)
	}
	for _, l := range levels {
		sort.Strings(l)
	}
	return levels
}
