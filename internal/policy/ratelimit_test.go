package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itori-ai/aiengine/internal/port"
)

// fakeClock drives the limiter's notion of time in tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg RateLimitConfig) (*RateLimiter, *fakeClock) {
	r := NewRateLimiter(cfg)
	clock := &fakeClock{t: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)}
	r.now = clock.now
	return r, clock
}

func TestRateLimiterPerPortWindow(t *testing.T) {
	r, clock := newTestLimiter(RateLimitConfig{PortPerMinute: 3, Burst: 3, GlobalPerMinute: 100})

	for i := 0; i < 3; i++ {
		require.True(t, r.Allows(port.Summarize), "call %d", i)
		r.Record(port.Summarize)
		clock.advance(11 * time.Second)
	}
	assert.False(t, r.Allows(port.Summarize), "window exhausted")
	assert.True(t, r.Allows(port.Rewrite), "other ports unaffected")

	clock.advance(time.Minute)
	assert.True(t, r.Allows(port.Summarize), "window slid past old calls")
}

func TestRateLimiterGlobalWindow(t *testing.T) {
	r, _ := newTestLimiter(RateLimitConfig{GlobalPerMinute: 2, PortPerMinute: 100, Burst: 100})

	r.Record(port.Summarize)
	r.Record(port.Rewrite)
	assert.False(t, r.Allows(port.IntentToAction), "global budget spent across ports")
}

func TestRateLimiterBurstCap(t *testing.T) {
	r, clock := newTestLimiter(RateLimitConfig{PortPerMinute: 10, Burst: 2, GlobalPerMinute: 100})

	r.Record(port.Summarize)
	r.Record(port.Summarize)
	assert.False(t, r.Allows(port.Summarize), "two calls inside ten seconds")

	clock.advance(11 * time.Second)
	assert.True(t, r.Allows(port.Summarize), "burst window passed, minute budget remains")
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r, clock := newTestLimiter(RateLimitConfig{
		MaxConsecutiveFailures: 3,
		BaseBackoff:            10 * time.Second,
		MaxBackoff:             300 * time.Second,
	})

	r.RecordFailure(port.SyllabusParse)
	r.RecordFailure(port.SyllabusParse)
	assert.True(t, r.Allows(port.SyllabusParse), "below threshold")
	assert.False(t, r.BreakerOpen(port.SyllabusParse))

	r.RecordFailure(port.SyllabusParse)
	assert.False(t, r.Allows(port.SyllabusParse), "breaker open")
	assert.True(t, r.BreakerOpen(port.SyllabusParse))
	assert.True(t, r.Allows(port.Summarize), "breaker is per port")

	clock.advance(11 * time.Second)
	assert.True(t, r.Allows(port.SyllabusParse), "backoff elapsed")
}

func TestCircuitBreakerBackoffDoublesAndCaps(t *testing.T) {
	r, clock := newTestLimiter(RateLimitConfig{
		MaxConsecutiveFailures: 2,
		BaseBackoff:            10 * time.Second,
		MaxBackoff:             30 * time.Second,
	})

	r.RecordFailure(port.Summarize)
	r.RecordFailure(port.Summarize) // opens for 10s
	clock.advance(11 * time.Second)
	require.True(t, r.Allows(port.Summarize))

	r.RecordFailure(port.Summarize) // third consecutive: 20s
	clock.advance(11 * time.Second)
	assert.False(t, r.Allows(port.Summarize))
	clock.advance(10 * time.Second)
	require.True(t, r.Allows(port.Summarize))

	r.RecordFailure(port.Summarize) // fourth: would be 40s, capped at 30s
	clock.advance(31 * time.Second)
	assert.True(t, r.Allows(port.Summarize))
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	r, _ := newTestLimiter(RateLimitConfig{MaxConsecutiveFailures: 3})

	r.RecordFailure(port.Summarize)
	r.RecordFailure(port.Summarize)
	r.RecordSuccess(port.Summarize)
	r.RecordFailure(port.Summarize)
	r.RecordFailure(port.Summarize)
	assert.True(t, r.Allows(port.Summarize), "success reset the failure count")
}

func TestCapabilityKillSwitch(t *testing.T) {
	c := NewCapability([]port.ID{port.Rewrite, port.SyllabusParse})
	assert.False(t, c.PortEnabled(port.Rewrite))
	assert.False(t, c.PortEnabled(port.SyllabusParse))
	assert.True(t, c.PortEnabled(port.Summarize))

	assert.True(t, NewCapability(nil).PortEnabled(port.Rewrite))
}

func TestStaticSettings(t *testing.T) {
	assert.True(t, StaticSettings(true).AssistEnabled())
	assert.False(t, StaticSettings(false).AssistEnabled())
}
