package policy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRequest_DeniesHostNotInAllowSet(t *testing.T) {
	cfg := Config{AllowSchemes: []string{"https"}, AllowHosts: []string{"api.example.com"}}

	d := CheckRequest(cfg, "GET", "https://internal.corp/secret", http.Header{}, 0)
	require.NotNil(t, d)
	assert.Contains(t, d.Error(), "internal.corp")
}

func TestCheckRequest_AllowsExactAndSubdomainHosts(t *testing.T) {
	cfg := Config{AllowSchemes: []string{"https"}, AllowHosts: []string{"api.example.com"}}

	assert.Nil(t, CheckRequest(cfg, "GET", "https://api.example.com/x", http.Header{}, 0))
	assert.Nil(t, CheckRequest(cfg, "GET", "https://sub.api.example.com/x", http.Header{}, 0))
	assert.NotNil(t, CheckRequest(cfg, "GET", "https://evil-api.example.com/x", http.Header{}, 0))
}

func TestCheckRequest_DeniesDisallowedScheme(t *testing.T) {
	cfg := Config{AllowSchemes: []string{"https"}, AllowHosts: []string{"api.example.com"}}
	d := CheckRequest(cfg, "GET", "http://api.example.com/x", http.Header{}, 0)
	require.NotNil(t, d)
	assert.Contains(t, d.Error(), "scheme")
}

func TestCheckRequest_DeniesPrivateIPLiteral(t *testing.T) {
	cfg := Config{AllowSchemes: []string{"https"}, AllowHosts: []string{"10.0.0.5"}, DenyPrivateIPLiterals: true}
	d := CheckRequest(cfg, "GET", "https://10.0.0.5/x", http.Header{}, 0)
	require.NotNil(t, d)
	assert.Contains(t, d.Error(), "private")
}

func TestCheckRequest_EmptyAllowHostsDeniesEverything(t *testing.T) {
	cfg := Config{AllowSchemes: []string{"https"}}
	d := CheckRequest(cfg, "GET", "https://anything.example.com/x", http.Header{}, 0)
	require.NotNil(t, d)
}

func TestCheckRequest_EnforcesBodyAndHeaderCaps(t *testing.T) {
	cfg := Config{
		AllowSchemes:          []string{"https"},
		AllowHosts:            []string{"api.example.com"},
		MaxRequestBodyBytes:   10,
		MaxRequestHeaderCount: 1,
	}
	assert.NotNil(t, CheckRequest(cfg, "GET", "https://api.example.com/x", http.Header{}, 20))

	h := http.Header{}
	h.Set("A", "1")
	h.Set("B", "2")
	assert.NotNil(t, CheckRequest(cfg, "GET", "https://api.example.com/x", h, 0))
}

func TestOverlay_TightensAllowSetsAndCaps(t *testing.T) {
	base := Config{
		AllowHosts:            []string{"a.com", "b.com"},
		MaxRequestBodyBytes:   1000,
		MaxRequestHeaderCount: 50,
	}
	override := Config{
		AllowHosts:            []string{"b.com", "c.com"},
		MaxRequestBodyBytes:   200,
		MaxRequestHeaderCount: 0,
	}
	merged := base.Overlay(override)
	assert.Equal(t, []string{"b.com"}, merged.AllowHosts)
	assert.Equal(t, 200, merged.MaxRequestBodyBytes)
	assert.Equal(t, 50, merged.MaxRequestHeaderCount)
}

func TestSanitize_RedactsConfiguredHeadersAndSecretBody(t *testing.T) {
	cfg := DefaultConfig()
	headers := map[string][]string{
		"Authorization": {"Bearer xyz"},
		"X-Trace-Id":    {"abc123"},
	}

	snap := Sanitize(cfg, headers, []byte(`{"password":"hunter2"}`), true, nil, 100)
	assert.Equal(t, []string{RedactionMarker}, snap.Headers["Authorization"])
	assert.Equal(t, []string{"abc123"}, snap.Headers["X-Trace-Id"])
	assert.Equal(t, []byte(RedactionMarker), snap.Body)
}

func TestSanitize_TruncatesOversizedNonSecretBody(t *testing.T) {
	cfg := DefaultConfig()
	body := make([]byte, 50)
	for i := range body {
		body[i] = 'x'
	}

	snap := Sanitize(cfg, map[string][]string{}, body, false, nil, 10)
	assert.True(t, snap.Truncated)
	assert.Len(t, snap.Body, 10)
}

func TestSanitize_RedactsCallerFlaggedSecretHeaders(t *testing.T) {
	cfg := Config{}
	snap := Sanitize(cfg, map[string][]string{"X-Api-Key": {"secret"}}, nil, false, []string{"x-api-key"}, 0)
	assert.Equal(t, []string{RedactionMarker}, snap.Headers["X-Api-Key"])
}
