// Package engine is the routing core: it owns the registered providers,
// consults the policy gates, walks the per-port provider preference order,
// and falls back to the deterministic path when nothing else can serve.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/itori-ai/aiengine/internal/audit"
	"github.com/itori-ai/aiengine/internal/fallback"
	"github.com/itori-ai/aiengine/internal/policy"
	"github.com/itori-ai/aiengine/internal/port"
	"github.com/itori-ai/aiengine/internal/provider"
)

// AuditSink receives routing outcomes. Implementations must not block.
type AuditSink interface {
	Record(e audit.Entry)
}

// Options configures a new Engine. Zero values take safe defaults: a no-op
// fallback, assist enabled, no disabled ports, default rate limits.
type Options struct {
	Providers   []provider.Provider
	Settings    policy.Settings
	Privacy     policy.PrivacyPolicy
	Fallback    fallback.Engine
	RateLimiter *policy.RateLimiter
	Capability  *policy.Capability
	Metrics     *Metrics
	Audit       AuditSink
	Logger      zerolog.Logger

	// CallTimeout bounds the whole provider-then-fallback chain when the
	// request context carries no deadline of its own.
	CallTimeout time.Duration
}

// Engine routes port invocations. All fields are set at construction and
// never mutated, so one instance serves concurrent callers.
type Engine struct {
	byID        map[port.ProviderID]provider.Provider
	privacy     policy.PrivacyPolicy
	rate        *policy.RateLimiter
	capability  *policy.Capability
	settings    policy.Settings
	fallback    fallback.Engine
	metrics     *Metrics
	audit       AuditSink
	log         zerolog.Logger
	callTimeout time.Duration
	det         *detCache
}

// New builds an engine from options.
func New(opts Options) *Engine {
	if opts.Settings == nil {
		opts.Settings = policy.StaticSettings(true)
	}
	if opts.Privacy == nil {
		opts.Privacy = policy.Privacy{}
	}
	if opts.Fallback == nil {
		opts.Fallback = fallback.NoOpEngine{}
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = policy.NewRateLimiter(policy.DefaultRateLimitConfig())
	}
	if opts.Capability == nil {
		opts.Capability = policy.NewCapability(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 60 * time.Second
	}

	byID := make(map[port.ProviderID]provider.Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		byID[p.ID()] = p
	}
	return &Engine{
		byID:        byID,
		privacy:     opts.Privacy,
		rate:        opts.RateLimiter,
		capability:  opts.Capability,
		settings:    opts.Settings,
		fallback:    opts.Fallback,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		log:         opts.Logger,
		callTimeout: opts.CallTimeout,
		det:         newDetCache(512),
	}
}

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Result is a successful port invocation.
type Result struct {
	Output     []byte
	Diagnostic Diagnostic
}

// Diagnostic explains how a request was routed. Safe to log and persist:
// hashes and routing metadata only.
type Diagnostic struct {
	Port          port.ID         `json:"port"`
	Provider      port.ProviderID `json:"provider"`
	Model         string          `json:"model,omitempty"`
	FallbackUsed  bool            `json:"fallbackUsed"`
	LatencyMs     int64           `json:"latencyMs"`
	ReasonCodes   []string        `json:"reasonCodes,omitempty"`
	InputHash     string          `json:"inputHash"`
	Redaction     string          `json:"redaction,omitempty"`
	CorrelationID string          `json:"correlationId"`
	TokensUsed    int             `json:"tokensUsed,omitempty"`
}

// Execute runs one port invocation end to end: validate, gate, redact, walk
// the provider preference order, fall back, validate the output.
func (e *Engine) Execute(ctx context.Context, id port.ID, input []byte, rc port.RequestContext) (Result, error) {
	start := time.Now()

	c, err := port.Lookup(id)
	if err != nil {
		return Result{}, &Error{Kind: KindCapabilityUnavailable, Port: id, Err: err}
	}
	if err := c.ValidateInput(input); err != nil {
		return Result{}, &Error{Kind: KindValidationFailed, Port: id, Direction: "input", Err: err}
	}
	inputHash, err := port.HashInput(c, input)
	if err != nil {
		return Result{}, &Error{Kind: KindValidationFailed, Port: id, Direction: "input", Err: err}
	}

	level := port.StricterOf(rc.Privacy, c.Privacy)

	// The gates short-circuit provider evaluation, never the fallback: a
	// killed or throttled port may still serve deterministically.
	var reasons []string
	enabled := e.capability.PortEnabled(id)
	if !enabled {
		reasons = append(reasons, ReasonDisabledByPolicy)
	}
	assist := e.settings.AssistEnabled()
	if !assist {
		reasons = append(reasons, ReasonLLMDisabled)
	}
	rateOK := e.rate.Allows(id)
	if !rateOK {
		reasons = append(reasons, ReasonRateLimited)
	}
	if !enabled || !assist || !rateOK {
		if e.fallbackUsable(c) {
			return e.runFallback(ctx, c, input, rc, inputHash, level, reasons, start)
		}
		reasons = append(reasons, ReasonNoFallback)
		e.auditFailure(rc, c, inputHash, start, string(KindPolicyDenied))
		return Result{}, &Error{Kind: KindPolicyDenied, Port: id, Reasons: reasons}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if !rc.Deadline.IsZero() {
		callCtx, cancel = context.WithDeadline(ctx, rc.Deadline)
	} else if e.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	result, reasons, err := e.tryProviders(callCtx, ctx, c, input, rc, inputHash, level, reasons, start)
	if err == nil && result != nil {
		return *result, nil
	}
	if err != nil {
		return Result{}, err
	}

	// No provider served. Fallback if the port has one.
	if e.fallbackUsable(c) {
		return e.runFallback(ctx, c, input, rc, inputHash, level, reasons, start)
	}
	reasons = append(reasons, ReasonNoFallback)
	e.rate.Record(id)
	if callCtx.Err() != nil && ctx.Err() == nil {
		// The call budget ran out mid-chain and no fallback exists.
		e.auditFailure(rc, c, inputHash, start, string(KindTimeout))
		return Result{}, &Error{Kind: KindTimeout, Port: id, Reasons: reasons, Err: callCtx.Err()}
	}
	e.auditFailure(rc, c, inputHash, start, string(KindCapabilityUnavailable))
	return Result{}, &Error{Kind: KindCapabilityUnavailable, Port: id, Reasons: reasons}
}

// tryProviders walks the contract's preference order. It returns a non-nil
// result on success, a non-nil error only for caller cancellation, and the
// accumulated reasons otherwise.
func (e *Engine) tryProviders(callCtx, parent context.Context, c port.Contract, input []byte, rc port.RequestContext, inputHash string, level port.PrivacyLevel, reasons []string, start time.Time) (*Result, []string, error) {
	sawSupport := false
	anyCandidate := false

	for _, pid := range c.PreferredProviders {
		if pid == port.ProviderFallbackHeuristic {
			continue
		}
		prov, ok := e.byID[pid]
		if !ok || !prov.Supports(c.ID) {
			continue
		}
		sawSupport = true
		if !e.privacy.Allows(pid, level) {
			continue
		}
		if !prov.Available() {
			// A cold or stale probe reads as unavailable; give the backend
			// one probe before skipping it, so one-shot callers reach a
			// healthy daemon without a prior Snapshot.
			if r, ok := prov.(provider.Refresher); ok {
				r.Refresh(callCtx)
			}
			if !prov.Available() {
				continue
			}
		}
		anyCandidate = true

		redacted, report, err := e.privacy.Redact(input, e.privacy.LevelFor(level, pid))
		if err != nil {
			e.log.Error().Err(err).Str("port", c.ID.String()).Msg("redaction failed, skipping provider")
			continue
		}

		out, diag, execErr := prov.Execute(callCtx, c.ID, redacted, rc)
		if execErr != nil && provider.IsTransient(execErr) && callCtx.Err() == nil {
			e.metrics.RecordRetry(pid)
			e.log.Debug().Str("port", c.ID.String()).Str("provider", pid.String()).Msg("transient failure, retrying once")
			out, diag, execErr = prov.Execute(callCtx, c.ID, redacted, rc)
		}

		if execErr != nil {
			// Caller cancellation is surfaced, never retried or counted.
			if parent.Err() != nil && errors.Is(execErr, parent.Err()) {
				return nil, reasons, parent.Err()
			}
			if callCtx.Err() != nil && errors.Is(execErr, context.DeadlineExceeded) {
				// Provider overran the call budget; stop walking providers
				// so the fallback still gets its chance.
				e.metrics.RecordCall(pid, diag.LatencyMs, diag.TokensUsed, true)
				e.rate.RecordFailure(c.ID)
				break
			}
			e.metrics.RecordCall(pid, diag.LatencyMs, diag.TokensUsed, true)
			e.rate.RecordFailure(c.ID)
			e.log.Warn().Err(execErr).Str("port", c.ID.String()).Str("provider", pid.String()).Msg("provider failed")
			continue
		}

		if err := c.ValidateOutput(out); err != nil {
			e.metrics.RecordCall(pid, diag.LatencyMs, diag.TokensUsed, true)
			e.rate.RecordFailure(c.ID)
			e.log.Warn().Err(err).Str("port", c.ID.String()).Str("provider", pid.String()).Msg("provider output rejected")
			continue
		}

		e.metrics.RecordCall(pid, diag.LatencyMs, diag.TokensUsed, false)
		e.rate.Record(c.ID)
		e.rate.RecordSuccess(c.ID)

		d := Diagnostic{
			Port:          c.ID,
			Provider:      pid,
			Model:         diag.Model,
			LatencyMs:     time.Since(start).Milliseconds(),
			ReasonCodes:   append(reasons, reasonProvider(pid)),
			InputHash:     inputHash,
			Redaction:     report.Summary(),
			CorrelationID: rc.CorrelationID.String(),
			TokensUsed:    diag.TokensUsed,
		}
		e.auditSuccess(rc, c, d, hashBytes(out))
		return &Result{Output: out, Diagnostic: d}, reasons, nil
	}

	if !sawSupport {
		reasons = append(reasons, ReasonNoProviderSupportsPort)
	} else if !anyCandidate {
		reasons = append(reasons, ReasonNoProviderAvailable)
	}
	return nil, reasons, nil
}

// fallbackUsable reports whether this port may degrade: the contract allows
// a deterministic rendition and the wired fallback engine has one.
func (e *Engine) fallbackUsable(c port.Contract) bool {
	return c.SupportsDeterministicFallback && e.fallback.CanFallback(c.ID)
}

func (e *Engine) runFallback(ctx context.Context, c port.Contract, input []byte, rc port.RequestContext, inputHash string, level port.PrivacyLevel, reasons []string, start time.Time) (Result, error) {
	out, err := e.fallback.Execute(ctx, c.ID, input, rc)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		e.rate.Record(c.ID)
		e.auditFailure(rc, c, inputHash, start, string(KindFallbackFailed))
		return Result{}, &Error{Kind: KindFallbackFailed, Port: c.ID, Reasons: reasons, Err: err}
	}
	if err := c.ValidateOutput(out); err != nil {
		e.rate.Record(c.ID)
		e.auditFailure(rc, c, inputHash, start, string(KindValidationFailed))
		return Result{}, &Error{Kind: KindValidationFailed, Port: c.ID, Direction: "output", Reasons: reasons, Err: err}
	}

	outputHash := hashBytes(out)
	if e.det.mismatch(string(c.ID)+"|"+inputHash, outputHash) {
		reasons = append(reasons, ReasonNonDeterministicFallback)
		e.log.Error().Str("port", c.ID.String()).Str("inputHash", inputHash).
			Msg("fallback produced a different output for a previously seen input")
	}

	e.metrics.RecordFallback()
	e.rate.Record(c.ID)

	d := Diagnostic{
		Port:          c.ID,
		Provider:      port.ProviderFallbackHeuristic,
		FallbackUsed:  true,
		LatencyMs:     time.Since(start).Milliseconds(),
		ReasonCodes:   append(reasons, reasonProvider(port.ProviderFallbackHeuristic)),
		InputHash:     inputHash,
		CorrelationID: rc.CorrelationID.String(),
	}
	e.auditSuccess(rc, c, d, outputHash)
	return Result{Output: out, Diagnostic: d}, nil
}

func (e *Engine) auditSuccess(rc port.RequestContext, c port.Contract, d Diagnostic, outputHash string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(audit.Entry{
		RequestID:    rc.CorrelationID.String(),
		Port:         c.ID,
		Provider:     d.Provider,
		FallbackUsed: d.FallbackUsed,
		Success:      true,
		LatencyMs:    d.LatencyMs,
		InputHash:    d.InputHash,
		OutputHash:   outputHash,
		Redaction:    d.Redaction,
	})
}

func (e *Engine) auditFailure(rc port.RequestContext, c port.Contract, inputHash string, start time.Time, errorCode string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(audit.Entry{
		RequestID: rc.CorrelationID.String(),
		Port:      c.ID,
		Provider:  "",
		Success:   false,
		ErrorCode: errorCode,
		LatencyMs: time.Since(start).Milliseconds(),
		InputHash: inputHash,
	})
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// detCache remembers the output hash the fallback produced per canonical
// input, so non-determinism is detected at runtime instead of trusted by
// convention. Bounded FIFO.
type detCache struct {
	mu      sync.Mutex
	entries map[string]string
	order   []string
	max     int
}

func newDetCache(max int) *detCache {
	return &detCache{entries: map[string]string{}, max: max}
}

// mismatch records the hash for key and reports whether a different hash was
// already recorded.
func (c *detCache) mismatch(key, outputHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.entries[key]
	if ok {
		return prev != outputHash
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = outputHash
	c.order = append(c.order, key)
	return false
}
