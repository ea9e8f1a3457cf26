// Package retry implements the pure retry decider of spec.md §4.6: given an
// attempt's outcome and the effective retry configuration, decide whether
// to retry (and after how long) or stop.
package retry

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Config is the effective retry configuration for an attempt.
type Config struct {
	GlobalMaxAttempts int
	RetryableStatuses map[int]bool
	BaseDelay         time.Duration
	Factor            float64
	MaxDelay          time.Duration
}

// DefaultConfig returns the spec's documented retry defaults.
func DefaultConfig() Config {
	return Config{
		GlobalMaxAttempts: 5,
		RetryableStatuses: map[int]bool{408: true, 429: true, 502: true, 503: true, 504: true},
		BaseDelay:         200 * time.Millisecond,
		Factor:            2.0,
		MaxDelay:          30 * time.Second,
	}
}

// Reason tags why a retry/stop decision was made.
type Reason string

const (
	ReasonPolicyFailed        Reason = "policy_failed"
	ReasonAttemptsExhausted   Reason = "attempts_exhausted"
	ReasonNonRetryableStatus  Reason = "non_retryable_status"
	ReasonRetryAfterHeader    Reason = "retry_after_header"
	ReasonVendorHeader        Reason = "vendor_retry_header"
	ReasonWorkflowRetryAfter  Reason = "workflow_retry_after"
	ReasonExponentialBackoff  Reason = "exponential_backoff"
)

// Decision is the decider's output: exactly one of RetryAfter or Stop.
type Decision struct {
	Retry  bool
	Delay  time.Duration
	Reason Reason
}

// Input bundles every observable the decider needs. RandUint64 must be
// supplied by the caller (e.g. from math/rand) so the decider stays pure.
type Input struct {
	AttemptNo              int
	ArazzoRetryLimit       *int
	ArazzoRetryAfterSecs   *float64
	PolicyFailed           bool
	HTTPStatus             *int
	Headers                http.Header
	NetworkFailed          bool
	RandUint64             func() uint64
}

// Decide applies the rules of spec.md §4.6 in order.
func Decide(cfg Config, in Input) Decision {
	if in.PolicyFailed {
		return Decision{Retry: false, Reason: ReasonPolicyFailed}
	}

	maxAttempts := cfg.GlobalMaxAttempts
	if in.ArazzoRetryLimit != nil {
		limitPlusOne := *in.ArazzoRetryLimit + 1
		if limitPlusOne < maxAttempts {
			maxAttempts = limitPlusOne
		}
	}
	if in.AttemptNo >= maxAttempts {
		return Decision{Retry: false, Reason: ReasonAttemptsExhausted}
	}

	if in.HTTPStatus != nil && !cfg.RetryableStatuses[*in.HTTPStatus] {
		return Decision{Retry: false, Reason: ReasonNonRetryableStatus}
	}

	if delay, ok := retryAfterFromHeaders(in.Headers); ok {
		return Decision{Retry: true, Delay: clamp(delay, cfg.MaxDelay), Reason: ReasonRetryAfterHeader}
	}
	if delay, ok := vendorRetryHeader(in.Headers); ok {
		return Decision{Retry: true, Delay: clamp(delay, cfg.MaxDelay), Reason: ReasonVendorHeader}
	}
	if in.ArazzoRetryAfterSecs != nil {
		delay := time.Duration(*in.ArazzoRetryAfterSecs * float64(time.Second))
		return Decision{Retry: true, Delay: clamp(delay, cfg.MaxDelay), Reason: ReasonWorkflowRetryAfter}
	}

	raw := float64(cfg.BaseDelay) * math.Pow(cfg.Factor, float64(in.AttemptNo-1))
	rawDelay := clamp(time.Duration(raw), cfg.MaxDelay)
	jittered := fullJitter(rawDelay, in.RandUint64)
	return Decision{Retry: true, Delay: jittered, Reason: ReasonExponentialBackoff}
}

func clamp(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	if d < 0 {
		return 0
	}
	return d
}

func fullJitter(raw time.Duration, randUint64 func() uint64) time.Duration {
	if raw <= 0 {
		return 0
	}
	if randUint64 == nil {
		return raw
	}
	n := randUint64() % uint64(raw.Nanoseconds()+1)
	return time.Duration(n)
}

// retryAfterFromHeaders parses the standard Retry-After header (either
// delta-seconds or an HTTP-date).
func retryAfterFromHeaders(h http.Header) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// vendorRetryHeader checks a small set of vendor-style retry hints beyond
// the standard Retry-After: delta-seconds, unix-seconds, or HTTP-date.
func vendorRetryHeader(h http.Header) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	for _, name := range []string{"X-RateLimit-Reset-After", "X-Retry-After", "X-RateLimit-Reset"} {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			if name == "X-RateLimit-Reset" && secs > 1e9 {
				// looks like a unix timestamp, not a delta
				until := time.Unix(int64(secs), 0)
				d := time.Until(until)
				if d < 0 {
					d = 0
				}
				return d, true
			}
			return time.Duration(secs * float64(time.Second)), true
		}
		if t, err := http.ParseTime(v); err == nil {
			d := time.Until(t)
			if d < 0 {
				d = 0
			}
			return d, true
		}
	}
	return 0, false
}
