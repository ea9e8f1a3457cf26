package retry

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func statusPtr(i int) *int        { return &i }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestDecide_PolicyFailedNeverRetries(t *testing.T) {
	d := Decide(DefaultConfig(), Input{AttemptNo: 1, PolicyFailed: true})
	assert.False(t, d.Retry)
	assert.Equal(t, ReasonPolicyFailed, d.Reason)
}

func TestDecide_AttemptsExhausted(t *testing.T) {
	cfg := DefaultConfig()
	d := Decide(cfg, Input{AttemptNo: cfg.GlobalMaxAttempts, HTTPStatus: statusPtr(503)})
	assert.False(t, d.Retry)
	assert.Equal(t, ReasonAttemptsExhausted, d.Reason)
}

func TestDecide_ArazzoRetryLimitCapsBelowGlobalMax(t *testing.T) {
	cfg := DefaultConfig()
	d := Decide(cfg, Input{AttemptNo: 2, ArazzoRetryLimit: intPtr(1), HTTPStatus: statusPtr(503)})
	assert.False(t, d.Retry)
	assert.Equal(t, ReasonAttemptsExhausted, d.Reason)
}

func TestDecide_NonRetryableStatusStops(t *testing.T) {
	d := Decide(DefaultConfig(), Input{AttemptNo: 1, HTTPStatus: statusPtr(400)})
	assert.False(t, d.Retry)
	assert.Equal(t, ReasonNonRetryableStatus, d.Reason)
}

func TestDecide_RetryAfterHeaderWins(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	d := Decide(DefaultConfig(), Input{
		AttemptNo:        1,
		ArazzoRetryLimit: intPtr(3),
		HTTPStatus:       statusPtr(503),
		Headers:          h,
	})
	assert.True(t, d.Retry)
	assert.Equal(t, ReasonRetryAfterHeader, d.Reason)
	assert.Equal(t, 5*time.Second, d.Delay)
}

func TestDecide_VendorHeaderBeatsWorkflowRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("X-Retry-After", "3")
	d := Decide(DefaultConfig(), Input{
		AttemptNo:            1,
		HTTPStatus:           statusPtr(503),
		Headers:              h,
		ArazzoRetryAfterSecs: floatPtr(10),
	})
	assert.True(t, d.Retry)
	assert.Equal(t, ReasonVendorHeader, d.Reason)
	assert.Equal(t, 3*time.Second, d.Delay)
}

func TestDecide_WorkflowRetryAfterUsedWhenNoHeaders(t *testing.T) {
	d := Decide(DefaultConfig(), Input{
		AttemptNo:            1,
		HTTPStatus:           statusPtr(503),
		ArazzoRetryAfterSecs: floatPtr(2.5),
	})
	assert.True(t, d.Retry)
	assert.Equal(t, ReasonWorkflowRetryAfter, d.Reason)
	assert.Equal(t, 2500*time.Millisecond, d.Delay)
}

func TestDecide_ExponentialBackoffWithFullJitter(t *testing.T) {
	cfg := DefaultConfig()
	d := Decide(cfg, Input{
		AttemptNo:  2,
		HTTPStatus: statusPtr(503),
		RandUint64: func() uint64 { return 0 },
	})
	assert.True(t, d.Retry)
	assert.Equal(t, ReasonExponentialBackoff, d.Reason)
	assert.Equal(t, time.Duration(0), d.Delay)

	raw := time.Duration(float64(cfg.BaseDelay) * cfg.Factor)
	d2 := Decide(cfg, Input{
		AttemptNo:  2,
		HTTPStatus: statusPtr(503),
		RandUint64: func() uint64 { return uint64(raw.Nanoseconds()) },
	})
	assert.True(t, d2.Retry)
	assert.LessOrEqual(t, d2.Delay, raw)
}

func TestDecide_DelayClampedToMaxDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDelay = time.Second
	h := http.Header{}
	h.Set("Retry-After", "600")
	d := Decide(cfg, Input{AttemptNo: 1, HTTPStatus: statusPtr(503), Headers: h})
	assert.Equal(t, time.Second, d.Delay)
}
