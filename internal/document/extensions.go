package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// extractExtensions pulls out any "x-*" keys from a raw JSON object that
// are not already accounted for by the typed struct's known fields.
func extractExtensions(raw map[string]json.RawMessage, known []string) map[string]any {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	var ext map[string]any
	for k, v := range raw {
		if knownSet[k] {
			continue
		}
		if !strings.HasPrefix(k, "x-") {
			continue
		}
		if ext == nil {
			ext = make(map[string]any)
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		ext[k] = val
	}
	return ext
}

// marshalWithExtensions marshals a struct alias and re-merges any captured
// extension keys into the resulting object, keeping round-trips lossless.
func marshalWithExtensions(alias any, ext map[string]any) ([]byte, error) {
	base, err := json.Marshal(alias)
	if err != nil {
		return nil, fmt.Errorf("marshaling: %w", err)
	}
	if len(ext) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("re-reading marshaled object: %w", err)
	}

	keys := make([]string, 0, len(ext))
	for k := range ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := json.Marshal(ext[k])
		if err != nil {
			return nil, fmt.Errorf("marshaling extension %q: %w", k, err)
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}
