package policy

import "strings"

// RedactionMarker replaces a persisted body that is known to contain secret
// bytes.
const RedactionMarker = "<redacted>"

// Snapshot is a sanitized request/response snapshot suitable for durable
// storage.
type Snapshot struct {
	Headers   map[string][]string
	Body      []byte
	Truncated bool
}

// Sanitize produces a Snapshot safe to persist: header values named in the
// redact set (plus any caller-flagged secret-derived header names) are
// replaced with RedactionMarker; if containsSecret is true the whole body is replaced with
// RedactionMarker; otherwise the body is truncated to maxBodyBytes and
// flagged.
func Sanitize(cfg Config, headers map[string][]string, body []byte, containsSecret bool, secretHeaderNames []string, maxBodyBytes int) Snapshot {
	redact := make(map[string]bool, len(cfg.RedactHeaderNames)+len(secretHeaderNames))
	for _, n := range cfg.RedactHeaderNames {
		redact[strings.ToLower(n)] = true
	}
	for _, n := range secretHeaderNames {
		redact[strings.ToLower(n)] = true
	}

	out := make(map[string][]string, len(headers))
	for k, vals := range headers {
		if redact[strings.ToLower(k)] {
			out[k] = []string{RedactionMarker}
			continue
		}
		out[k] = append([]string(nil), vals...)
	}

	snap := Snapshot{Headers: out}
	switch {
	case containsSecret:
		snap.Body = []byte(RedactionMarker)
	case maxBodyBytes > 0 && len(body) > maxBodyBytes:
		snap.Body = append([]byte(nil), body[:maxBodyBytes]...)
		snap.Truncated = true
	default:
		snap.Body = append([]byte(nil), body...)
	}
	return snap
}
