package openapi

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/alirezaght/arazzo/internal/document"
	"github.com/alirezaght/arazzo/internal/expr"
)

// Severity tags a compile diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a per-step compile-time note.
type Diagnostic struct {
	Severity Severity
	Message  string
}

// CompiledParameter is a resolved, deduplicated operation parameter.
type CompiledParameter struct {
	Name     string
	Location string
	Required bool
}

// ResolvedOperation is the compiler's output for one step.
type ResolvedOperation struct {
	SourceName              string
	BaseURL                 string
	Method                  string
	Path                    string
	OperationID             string
	Parameters              []CompiledParameter
	RequestBodyRequired     bool
	RequestBodyContentTypes []string
	Diagnostics             []Diagnostic
}

func (r *ResolvedOperation) fail(format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
}

func (r *ResolvedOperation) warn(format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any diagnostic is an error.
func (r *ResolvedOperation) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

var operationPathRe = regexp.MustCompile(`^\{?\$sourceDescriptions\.([A-Za-z0-9_\-]+)\.url\}?#/paths/(.+)/([A-Za-z]+)$`)

// Compiler resolves steps against a set of loaded sources.
type Compiler struct {
	Sources map[string]*Source
}

// NewCompiler builds a Compiler over the given named sources.
func NewCompiler(sources map[string]*Source) *Compiler {
	return &Compiler{Sources: sources}
}

// Resolve compiles a single step's operation target into a ResolvedOperation.
func (c *Compiler) Resolve(s *document.Step) *ResolvedOperation {
	out := &ResolvedOperation{}

	switch {
	case s.OperationID != "":
		c.resolveByOperationID(s, out)
	case s.OperationPath != "":
		c.resolveByOperationPath(s, out)
	default:
		out.fail("step %q has no operation target", s.StepID)
		return out
	}
	if out.HasErrors() {
		return out
	}

	c.compileShape(s, out)
	return out
}

func (c *Compiler) resolveByOperationID(s *document.Step, out *ResolvedOperation) {
	opID := s.OperationID
	if strings.HasPrefix(opID, "$sourceDescriptions.") {
		rest := opID[len("$sourceDescriptions."):]
		dot := strings.Index(rest, ".")
		if dot < 0 {
			out.fail("malformed qualified operationId %q", opID)
			return
		}
		sourceName := rest[:dot]
		realOpID := rest[dot+1:]
		src, ok := c.Sources[sourceName]
		if !ok {
			out.fail("source %q not found for operationId %q", sourceName, opID)
			return
		}
		c.findOperationInSource(src, realOpID, out)
		return
	}

	if len(c.Sources) == 1 {
		for _, src := range c.Sources {
			c.findOperationInSource(src, opID, out)
			return
		}
	}

	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var matches []*Source
	for _, name := range names {
		if sourceHasOperation(c.Sources[name], opID) {
			matches = append(matches, c.Sources[name])
		}
	}
	switch len(matches) {
	case 0:
		out.fail("operationId %q not found in any source", opID)
	case 1:
		out.warn("operationId %q resolved via an unqualified search; qualify with $sourceDescriptions.%s.%s", opID, matches[0].Name, opID)
		c.findOperationInSource(matches[0], opID, out)
	default:
		out.fail("operationId %q is ambiguous across multiple sources", opID)
	}
}

func sourceHasOperation(src *Source, opID string) bool {
	paths, _ := src.Tree["paths"].(map[string]any)
	for _, rawItem := range paths {
		item, _ := rawItem.(map[string]any)
		for m, rawOp := range item {
			if !isHTTPMethod(m) {
				continue
			}
			op, _ := rawOp.(map[string]any)
			if id, _ := op["operationId"].(string); id == opID {
				return true
			}
		}
	}
	return false
}

func (c *Compiler) findOperationInSource(src *Source, opID string, out *ResolvedOperation) {
	paths, _ := src.Tree["paths"].(map[string]any)
	pathKeys := make([]string, 0, len(paths))
	for k := range paths {
		pathKeys = append(pathKeys, k)
	}
	sort.Strings(pathKeys)

	for _, p := range pathKeys {
		item, _ := paths[p].(map[string]any)
		methodKeys := make([]string, 0, len(item))
		for k := range item {
			methodKeys = append(methodKeys, k)
		}
		sort.Strings(methodKeys)
		for _, m := range methodKeys {
			if !isHTTPMethod(m) {
				continue
			}
			op, _ := item[m].(map[string]any)
			if id, _ := op["operationId"].(string); id == opID {
				out.SourceName = src.Name
				out.Path = p
				out.Method = strings.ToUpper(m)
				out.OperationID = opID
				out.BaseURL = resolveBaseURL(src.Tree, item, op)
				return
			}
		}
	}
	out.fail("operationId %q not found in source %q", opID, src.Name)
}

func (c *Compiler) resolveByOperationPath(s *document.Step, out *ResolvedOperation) {
	m := operationPathRe.FindStringSubmatch(s.OperationPath)
	if m == nil {
		out.fail("operationPath %q does not match {$sourceDescriptions.<name>.url}#/paths/<path>/<method>", s.OperationPath)
		return
	}
	sourceName, rawPathToken, method := m[1], m[2], strings.ToLower(m[3])
	src, ok := c.Sources[sourceName]
	if !ok {
		out.fail("source %q not found for operationPath", sourceName)
		return
	}

	pointer := "/paths/" + rawPathToken + "/" + method
	v, found, err := expr.ResolvePointer(src.Tree, pointer)
	if err != nil || !found {
		out.fail("operationPath %q does not resolve in source %q", s.OperationPath, sourceName)
		return
	}
	op, ok := v.(map[string]any)
	if !ok {
		out.fail("operationPath %q does not resolve to an operation object", s.OperationPath)
		return
	}
	paths, _ := src.Tree["paths"].(map[string]any)
	item, _ := paths[decodePointerToken(rawPathToken)].(map[string]any)

	out.SourceName = sourceName
	out.Path = decodePointerToken(rawPathToken)
	out.Method = strings.ToUpper(method)
	if id, _ := op["operationId"].(string); id != "" {
		out.OperationID = id
	}
	out.BaseURL = resolveBaseURL(src.Tree, item, op)
}

func decodePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}

func isHTTPMethod(m string) bool {
	switch strings.ToLower(m) {
	case "get", "put", "post", "delete", "options", "head", "patch", "trace":
		return true
	}
	return false
}

func resolveBaseURL(docTree map[string]any, pathItem, op map[string]any) string {
	if u := firstServerURL(op); u != "" {
		return u
	}
	if u := firstServerURL(pathItem); u != "" {
		return u
	}
	return firstServerURL(docTree)
}

func firstServerURL(m map[string]any) string {
	if m == nil {
		return ""
	}
	servers, _ := m["servers"].([]any)
	if len(servers) == 0 {
		return ""
	}
	first, _ := servers[0].(map[string]any)
	if first == nil {
		return ""
	}
	u, _ := first["url"].(string)
	return u
}

func (c *Compiler) compileShape(s *document.Step, out *ResolvedOperation) {
	src := c.Sources[out.SourceName]
	paths, _ := src.Tree["paths"].(map[string]any)
	item, _ := paths[out.Path].(map[string]any)
	op, _ := item[strings.ToLower(out.Method)].(map[string]any)

	params := map[[2]string]*CompiledParameter{}
	collect := func(list []any) {
		for _, raw := range list {
			pm, _ := raw.(map[string]any)
			if pm == nil {
				continue
			}
			if ref, ok := pm["$ref"].(string); ok {
				resolved, found, err := resolveLocalRef(src.Tree, ref)
				if err != nil || !found {
					out.warn("could not resolve parameter $ref %q", ref)
					continue
				}
				pm, _ = resolved.(map[string]any)
				if pm == nil {
					continue
				}
			}
			name, _ := pm["name"].(string)
			in, _ := pm["in"].(string)
			if name == "" || in == "" {
				continue
			}
			required, _ := pm["required"].(bool)
			if in == "path" {
				required = true
			}
			key := [2]string{in, name}
			if existing, ok := params[key]; ok {
				existing.Required = existing.Required || required
			} else {
				params[key] = &CompiledParameter{Name: name, Location: in, Required: required}
			}
		}
	}
	if list, ok := item["parameters"].([]any); ok {
		collect(list)
	}
	if list, ok := op["parameters"].([]any); ok {
		collect(list)
	}

	keys := make([][2]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		out.Parameters = append(out.Parameters, *params[k])
	}

	if rb, ok := op["requestBody"].(map[string]any); ok {
		if ref, ok := rb["$ref"].(string); ok {
			resolved, found, err := resolveLocalRef(src.Tree, ref)
			if err == nil && found {
				rb, _ = resolved.(map[string]any)
			}
		}
		if rb != nil {
			required, _ := rb["required"].(bool)
			out.RequestBodyRequired = required
			content, _ := rb["content"].(map[string]any)
			cts := make([]string, 0, len(content))
			for ct := range content {
				cts = append(cts, ct)
			}
			sort.Strings(cts)
			out.RequestBodyContentTypes = cts
		}
	}

	c.checkSuppliedParameters(s, out)
}

func (c *Compiler) checkSuppliedParameters(s *document.Step, out *ResolvedOperation) {
	supplied := map[[2]string]bool{}
	for _, p := range s.Parameters {
		supplied[[2]string{p.In, p.Name}] = true
	}
	for _, cp := range out.Parameters {
		if cp.Required && !supplied[[2]string{cp.Location, cp.Name}] {
			out.fail("missing required parameter (name=%q, in=%q)", cp.Name, cp.Location)
		}
	}
	if out.RequestBodyRequired && s.RequestBody == nil {
		out.fail("missing required request body")
	}
}

// resolveLocalRef resolves a "#/..." local JSON-pointer $ref against the
// source tree, rejecting external refs and guarding against self-cycles.
func resolveLocalRef(tree map[string]any, ref string) (any, bool, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, false, fmt.Errorf("external $ref not supported: %q", ref)
	}
	seen := map[string]bool{}
	current := ref
	for {
		if seen[current] {
			return nil, false, fmt.Errorf("cyclic $ref: %q", current)
		}
		seen[current] = true
		v, found, err := expr.ResolvePointer(tree, current[1:])
		if err != nil || !found {
			return nil, found, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return v, true, nil
		}
		nextRef, ok := m["$ref"].(string)
		if !ok {
			return v, true, nil
		}
		if !strings.HasPrefix(nextRef, "#/") {
			return nil, false, fmt.Errorf("external $ref not supported: %q", nextRef)
		}
		current = nextRef
	}
}
