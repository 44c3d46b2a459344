package policy

import (
	"sync"
	"time"

	"github.com/itori-ai/aiengine/internal/port"
)

// RateLimitConfig bounds how often ports may fire and how the per-port
// circuit breaker reacts to failing backends.
type RateLimitConfig struct {
	// GlobalPerMinute caps calls across all ports in a sliding minute.
	GlobalPerMinute int

	// PortPerMinute caps calls per port in a sliding minute.
	PortPerMinute int

	// Burst caps calls per port in any ten-second span, so a caller cannot
	// spend a whole minute's budget at once.
	Burst int

	// MaxConsecutiveFailures opens a port's breaker once reached.
	MaxConsecutiveFailures int

	// BaseBackoff is the first open interval; it doubles per further
	// failure up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRateLimitConfig mirrors the limits the app ships with.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalPerMinute:        30,
		PortPerMinute:          10,
		Burst:                  5,
		MaxConsecutiveFailures: 3,
		BaseBackoff:            10 * time.Second,
		MaxBackoff:             300 * time.Second,
	}
}

const burstWindow = 10 * time.Second

// breakerState tracks consecutive failures for one port.
type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

// RateLimiter enforces sliding-window limits plus a per-port circuit
// breaker. Allows is a pure check; the engine calls Record only for calls
// that actually ran to completion, so cancelled calls never consume budget.
type RateLimiter struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	global   []time.Time
	perPort  map[port.ID][]time.Time
	breakers map[port.ID]*breakerState

	// now is a test hook.
	now func() time.Time
}

// NewRateLimiter creates a limiter; zero-valued config fields take defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.GlobalPerMinute == 0 {
		cfg.GlobalPerMinute = def.GlobalPerMinute
	}
	if cfg.PortPerMinute == 0 {
		cfg.PortPerMinute = def.PortPerMinute
	}
	if cfg.Burst == 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &RateLimiter{
		cfg:      cfg,
		perPort:  map[port.ID][]time.Time{},
		breakers: map[port.ID]*breakerState{},
		now:      time.Now,
	}
}

// Allows reports whether a call on the port may proceed right now. It does
// not consume budget.
func (r *RateLimiter) Allows(id port.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if b, ok := r.breakers[id]; ok && now.Before(b.openUntil) {
		return false
	}

	r.global = prune(r.global, now.Add(-time.Minute))
	r.perPort[id] = prune(r.perPort[id], now.Add(-time.Minute))

	if len(r.global) >= r.cfg.GlobalPerMinute {
		return false
	}
	stamps := r.perPort[id]
	if len(stamps) >= r.cfg.PortPerMinute {
		return false
	}
	if countSince(stamps, now.Add(-burstWindow)) >= r.cfg.Burst {
		return false
	}
	return true
}

// Record consumes one unit of budget for a completed call.
func (r *RateLimiter) Record(id port.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.global = append(prune(r.global, now.Add(-time.Minute)), now)
	r.perPort[id] = append(prune(r.perPort[id], now.Add(-time.Minute)), now)
}

// RecordSuccess closes the port's breaker.
func (r *RateLimiter) RecordSuccess(id port.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, id)
}

// RecordFailure counts one backend failure. Once MaxConsecutiveFailures is
// reached the breaker opens, doubling its interval per further failure up to
// MaxBackoff.
func (r *RateLimiter) RecordFailure(id port.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.breakers[id]
	if b == nil {
		b = &breakerState{}
		r.breakers[id] = b
	}
	b.consecutiveFailures++
	if b.consecutiveFailures < r.cfg.MaxConsecutiveFailures {
		return
	}
	backoff := r.cfg.BaseBackoff
	for i := r.cfg.MaxConsecutiveFailures; i < b.consecutiveFailures && backoff < r.cfg.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > r.cfg.MaxBackoff {
		backoff = r.cfg.MaxBackoff
	}
	b.openUntil = r.now().Add(backoff)
}

// BreakerOpen reports whether the port's breaker is currently open. Used by
// availability snapshots.
func (r *RateLimiter) BreakerOpen(id port.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[id]
	return ok && r.now().Before(b.openUntil)
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

func countSince(stamps []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(stamps) - 1; i >= 0; i-- {
		if !stamps[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}
