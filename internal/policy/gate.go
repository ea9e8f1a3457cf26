// Package policy implements the stateless policy gate of spec.md §4.5:
// scheme/host/IP allowlists, size caps, and snapshot sanitization.
package policy

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Config parametrizes the gate. A zero-value Config denies everything
// (empty allow sets deny by default, per spec.md §4.5).
type Config struct {
	AllowSchemes           []string
	AllowHosts             []string
	DenyPrivateIPLiterals  bool
	MaxRequestHeaderBytes  int
	MaxRequestHeaderCount  int
	MaxRequestBodyBytes    int
	MaxResponseHeaderBytes int
	MaxResponseHeaderCount int
	MaxResponseBodyBytes   int
	RedactHeaderNames      []string
	// AllowRedirects controls whether the HTTP client follows redirect
	// responses. Off by default (spec.md §6): a server-controlled redirect
	// could otherwise steer a request past the host allowlist.
	AllowRedirects bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		AllowSchemes:           []string{"https"},
		DenyPrivateIPLiterals:  true,
		MaxRequestHeaderBytes:  32 * 1024,
		MaxRequestHeaderCount:  100,
		MaxRequestBodyBytes:    10 * 1024 * 1024,
		MaxResponseHeaderBytes: 32 * 1024,
		MaxResponseHeaderCount: 100,
		MaxResponseBodyBytes:   10 * 1024 * 1024,
		RedactHeaderNames:      []string{"authorization", "cookie", "set-cookie"},
		AllowRedirects:         false,
	}
}

// Overlay merges a tightening override on top of c: for allow-sets the
// override, if non-empty, must be a subset-intersection (tightening only);
// for byte/count caps, the smaller value wins.
func (c Config) Overlay(o Config) Config {
	out := c
	if len(o.AllowSchemes) > 0 {
		out.AllowSchemes = intersect(c.AllowSchemes, o.AllowSchemes)
	}
	if len(o.AllowHosts) > 0 {
		out.AllowHosts = intersect(c.AllowHosts, o.AllowHosts)
	}
	out.DenyPrivateIPLiterals = c.DenyPrivateIPLiterals || o.DenyPrivateIPLiterals
	out.AllowRedirects = c.AllowRedirects && o.AllowRedirects
	out.MaxRequestHeaderBytes = min0(c.MaxRequestHeaderBytes, o.MaxRequestHeaderBytes)
	out.MaxRequestHeaderCount = min0(c.MaxRequestHeaderCount, o.MaxRequestHeaderCount)
	out.MaxRequestBodyBytes = min0(c.MaxRequestBodyBytes, o.MaxRequestBodyBytes)
	out.MaxResponseHeaderBytes = min0(c.MaxResponseHeaderBytes, o.MaxResponseHeaderBytes)
	out.MaxResponseHeaderCount = min0(c.MaxResponseHeaderCount, o.MaxResponseHeaderCount)
	out.MaxResponseBodyBytes = min0(c.MaxResponseBodyBytes, o.MaxResponseBodyBytes)
	if len(o.RedactHeaderNames) > 0 {
		out.RedactHeaderNames = union(c.RedactHeaderNames, o.RedactHeaderNames)
	}
	return out
}

func min0(a, b int) int {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func intersect(base, overlay []string) []string {
	baseSet := make(map[string]bool, len(base))
	for _, v := range base {
		baseSet[strings.ToLower(v)] = true
	}
	var out []string
	for _, v := range overlay {
		if baseSet[strings.ToLower(v)] {
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []string) []string {
	set := map[string]bool{}
	var out []string
	for _, v := range append(append([]string{}, a...), b...) {
		k := strings.ToLower(v)
		if !set[k] {
			set[k] = true
			out = append(out, v)
		}
	}
	return out
}

// Denial describes why a request/response was rejected.
type Denial struct {
	Reason string
}

func (d *Denial) Error() string { return d.Reason }

func deny(format string, args ...any) *Denial {
	return &Denial{Reason: fmt.Sprintf(format, args...)}
}

// CheckRequest enforces scheme/host/IP/size rules on an outbound request.
func CheckRequest(cfg Config, method, rawURL string, headers http.Header, bodyLen int) *Denial {
	scheme, host, err := splitURL(rawURL)
	if err != nil {
		return deny("invalid URL %q: %v", rawURL, err)
	}

	if !containsFold(cfg.AllowSchemes, scheme) {
		return deny("scheme %q is not in the allowed scheme set", scheme)
	}
	if len(cfg.AllowHosts) == 0 {
		return deny("no hosts are allowed by policy")
	}
	if !hostAllowed(cfg.AllowHosts, host) {
		return deny("host %q is not in the allowed host set", host)
	}
	if cfg.DenyPrivateIPLiterals && isPrivateLiteral(host) {
		return deny("host %q is a denied private IP literal", host)
	}

	if d := checkHeaders(headers, cfg.MaxRequestHeaderCount, cfg.MaxRequestHeaderBytes); d != nil {
		return d
	}
	if cfg.MaxRequestBodyBytes > 0 && bodyLen > cfg.MaxRequestBodyBytes {
		return deny("request body of %d bytes exceeds the %d byte cap", bodyLen, cfg.MaxRequestBodyBytes)
	}
	return nil
}

// CheckResponse enforces header/body size caps on an inbound response.
func CheckResponse(cfg Config, headers http.Header, bodyLen int) *Denial {
	if d := checkHeaders(headers, cfg.MaxResponseHeaderCount, cfg.MaxResponseHeaderBytes); d != nil {
		return d
	}
	if cfg.MaxResponseBodyBytes > 0 && bodyLen > cfg.MaxResponseBodyBytes {
		return deny("response body of %d bytes exceeds the %d byte cap", bodyLen, cfg.MaxResponseBodyBytes)
	}
	return nil
}

func checkHeaders(headers http.Header, maxCount, maxBytes int) *Denial {
	count := 0
	total := 0
	for k, vals := range headers {
		for _, v := range vals {
			count++
			total += len(k) + len(v)
		}
	}
	if maxCount > 0 && count > maxCount {
		return deny("header count %d exceeds the %d cap", count, maxCount)
	}
	if maxBytes > 0 && total > maxBytes {
		return deny("header byte budget %d exceeds the %d cap", total, maxBytes)
	}
	return nil
}

func splitURL(rawURL string) (scheme, host string, err error) {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return "", "", fmt.Errorf("missing scheme")
	}
	scheme = strings.ToLower(rawURL[:idx])
	rest := rawURL[idx+3:]
	end := strings.IndexAny(rest, "/?#")
	if end >= 0 {
		rest = rest[:end]
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	host = rest
	if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return "", "", fmt.Errorf("missing host")
	}
	return scheme, host, nil
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func hostAllowed(allow []string, host string) bool {
	h := strings.ToLower(host)
	for _, a := range allow {
		a = strings.ToLower(a)
		if h == a {
			return true
		}
		if strings.HasSuffix(h, "."+a) {
			return true
		}
	}
	return false
}

var privateV4 = []*net.IPNet{
	mustCIDR("10.0.0.0/8"),
	mustCIDR("127.0.0.0/8"),
	mustCIDR("169.254.0.0/16"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
}

var privateV6 = []*net.IPNet{
	mustCIDR("::1/128"),
	mustCIDR("fe80::/10"),
	mustCIDR("fc00::/7"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func isPrivateLiteral(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	nets := privateV4
	if ip.To4() == nil {
		nets = privateV6
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
