// Package openapi implements the OpenAPI resolver/compiler of spec.md §4.4:
// loading source descriptions, resolving operationId/operationPath
// references against them, and compiling parameter/requestBody shapes.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/alirezaght/arazzo/internal/document"
)

// Source is a loaded OpenAPI source description: both the structured
// kin-openapi model (used for servers/components convenience accessors)
// and a generic JSON tree (used for the spec's custom JSON-pointer
// operation resolution, which needs raw key-order-agnostic traversal that
// the typed model doesn't expose directly).
type Source struct {
	Name string
	Tree map[string]any
	Doc  *openapi3.T
}

// Loader fetches and parses source descriptions over http(s) or the local
// filesystem.
type Loader struct {
	HTTPClient *http.Client
}

// NewLoader returns a Loader with a bounded-timeout HTTP client.
func NewLoader() *Loader {
	return &Loader{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// Load fetches, parses, and compiles a source description into a Source.
func (l *Loader) Load(ctx context.Context, sd document.SourceDescription) (*Source, error) {
	raw, err := l.fetch(ctx, sd.URL)
	if err != nil {
		return nil, fmt.Errorf("loading source %q: %w", sd.Name, err)
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing OpenAPI source %q: %w", sd.Name, err)
	}

	tree, err := toJSONTree(raw)
	if err != nil {
		return nil, fmt.Errorf("building JSON tree for source %q: %w", sd.Name, err)
	}

	return &Source{Name: sd.Name, Tree: tree, Doc: doc}, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(url)
}

// toJSONTree re-marshals the raw source bytes (JSON or YAML, via
// kin-openapi's own loader having already normalized it) into a generic
// map[string]any using the structured model's MarshalJSON, which always
// produces JSON regardless of the original encoding.
func toJSONTree(raw []byte) (map[string]any, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, err
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
