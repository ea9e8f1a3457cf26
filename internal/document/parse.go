package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FormatJSON and FormatYAML tag which encoding a document was parsed from.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Parse auto-detects JSON or YAML framing and decodes raw bytes into a
// Document, also populating Raw/Projection/Format for downstream use.
//
// Detection: the first non-whitespace byte decides which parser to try
// first ('{' or '[' means JSON); if the preferred parser fails, the other
// is tried; if both fail, the first attempt's error is surfaced.
func Parse(raw []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(raw)
	preferJSON := len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')

	var (
		doc      Document
		firstErr error
		format   string
	)

	tryJSON := func() error {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing as JSON: %w", err)
		}
		format = FormatJSON
		return nil
	}
	tryYAML := func() error {
		var node Document
		if err := yaml.Unmarshal(raw, &node); err != nil {
			return fmt.Errorf("parsing as YAML: %w", err)
		}
		// yaml.v3 does not invoke json.Unmarshaler for extension capture,
		// so re-run through the JSON path once YAML has normalized to a
		// generic tree.
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("parsing as YAML: %w", err)
		}
		asJSON, err := yamlToJSON(generic)
		if err != nil {
			return fmt.Errorf("normalizing YAML to JSON: %w", err)
		}
		if err := json.Unmarshal(asJSON, &doc); err != nil {
			return fmt.Errorf("decoding normalized YAML: %w", err)
		}
		format = FormatYAML
		return nil
	}

	order := []func() error{tryJSON, tryYAML}
	if !preferJSON {
		order = []func() error{tryYAML, tryJSON}
	}

	for i, attempt := range order {
		if err := attempt(); err != nil {
			if i == 0 {
				firstErr = err
				continue
			}
			return nil, firstErr
		}
		firstErr = nil
		break
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var projection map[string]any
	projBytes, err := yamlToJSON(mustGeneric(raw, format))
	if err != nil {
		return nil, fmt.Errorf("building projection: %w", err)
	}
	if err := json.Unmarshal(projBytes, &projection); err != nil {
		return nil, fmt.Errorf("decoding projection: %w", err)
	}

	doc.Raw = append([]byte(nil), raw...)
	doc.Projection = projection
	doc.Format = format
	return &doc, nil
}

func mustGeneric(raw []byte, format string) any {
	var v any
	if format == FormatJSON {
		_ = json.Unmarshal(raw, &v)
	} else {
		_ = yaml.Unmarshal(raw, &v)
	}
	return v
}

// yamlToJSON converts the generic value tree yaml.v3 produces (which may
// contain map[string]interface{} with non-string keys in edge cases) into
// a value that encoding/json can marshal, then returns the JSON bytes.
func yamlToJSON(v any) ([]byte, error) {
	converted := normalize(v)
	return json.Marshal(converted)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return t
	}
}

// Hash computes the content-address (doc_hash) of the raw document bytes,
// per spec.md §3 WorkflowDoc.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
