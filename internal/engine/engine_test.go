package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itori-ai/aiengine/internal/fallback"
	"github.com/itori-ai/aiengine/internal/policy"
	"github.com/itori-ai/aiengine/internal/port"
	"github.com/itori-ai/aiengine/internal/provider"
)

// spyProvider is a scripted backend that counts calls.
type spyProvider struct {
	mu        sync.Mutex
	id        port.ProviderID
	available bool
	supports  map[port.ID]bool // nil means every port
	output    []byte
	errs      []error // consumed one per call, then output is served
	calls     int
	lastInput []byte
}

func (s *spyProvider) ID() port.ProviderID { return s.id }
func (s *spyProvider) Available() bool     { return s.available }

func (s *spyProvider) Supports(id port.ID) bool {
	if s.supports == nil {
		return id.Valid()
	}
	return s.supports[id]
}

func (s *spyProvider) Execute(_ context.Context, _ port.ID, input []byte, _ port.RequestContext) ([]byte, provider.Diagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastInput = append([]byte(nil), input...)
	diag := provider.Diagnostic{Provider: s.id, Model: "spy-model", LatencyMs: 1}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, diag, err
		}
	}
	return s.output, diag, nil
}

func (s *spyProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// scriptedFallback returns canned outputs per call, for determinism tests.
type scriptedFallback struct {
	outputs [][]byte
	calls   int
}

func (f *scriptedFallback) CanFallback(port.ID) bool { return true }

func (f *scriptedFallback) Execute(_ context.Context, _ port.ID, _ []byte, _ port.RequestContext) ([]byte, error) {
	out := f.outputs[f.calls%len(f.outputs)]
	f.calls++
	return out, nil
}

func onDeviceSpy(out string) *spyProvider {
	return &spyProvider{id: port.ProviderOnDeviceFoundation, available: true, output: []byte(out)}
}

func byoSpy(out string) *spyProvider {
	return &spyProvider{id: port.ProviderBringYourOwn, available: true, output: []byte(out)}
}

func newTestEngine(providers []provider.Provider, mutate func(*Options)) *Engine {
	opts := Options{
		Providers: providers,
		Fallback:  fallback.NewHeuristics(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

const summaryOut = `{"summary":"short"}`

var summarizeIn = []byte(`{"text":"First point. Second point. Third point. Fourth point."}`)

func TestExecutePrefersFirstViableProvider(t *testing.T) {
	onDevice := onDeviceSpy(summaryOut)
	byo := byoSpy(`{"summary":"remote"}`)
	e := newTestEngine([]provider.Provider{byo, onDevice}, nil)

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, summaryOut, string(res.Output))
	assert.Equal(t, port.ProviderOnDeviceFoundation, res.Diagnostic.Provider)
	assert.False(t, res.Diagnostic.FallbackUsed)
	assert.Contains(t, res.Diagnostic.ReasonCodes, "provider=onDeviceFoundation")
	assert.Equal(t, 1, onDevice.callCount())
	assert.Equal(t, 0, byo.callCount(), "preference order, not registration order")
}

func TestExecuteSkipsUnavailableProvider(t *testing.T) {
	down := &spyProvider{id: port.ProviderOnDeviceFoundation, available: false}
	byo := byoSpy(summaryOut)
	e := newTestEngine([]provider.Provider{down, byo}, nil)

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, port.ProviderBringYourOwn, res.Diagnostic.Provider)
	assert.Equal(t, 0, down.callCount())
}

func TestExecuteRefreshesColdProvider(t *testing.T) {
	// No Snapshot has run, so the probe cache is cold and Available() reads
	// false. The preference walk probes once and routes to the backend.
	spy := &refreshSpy{spyProvider: spyProvider{id: port.ProviderOnDeviceFoundation, output: []byte(summaryOut)}}
	e := newTestEngine([]provider.Provider{spy}, func(o *Options) { o.Fallback = fallback.NoOpEngine{} })

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, port.ProviderOnDeviceFoundation, res.Diagnostic.Provider)
	assert.False(t, res.Diagnostic.FallbackUsed)
	assert.Equal(t, int32(1), spy.refreshes.Load(), "one on-demand probe for a cold provider")
}

func TestExecuteReachesDaemonWithoutSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			fmt.Fprint(w, `{"data":[{"id":"foundation-small"}]}`)
		case "/chat/completions":
			fmt.Fprint(w, `{"model":"foundation-small","choices":[{"message":{"content":"{\"summary\":\"short\"}"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	onDevice := provider.NewOnDeviceFoundation(&provider.Config{Endpoint: srv.URL, Model: "foundation-small"})
	e := newTestEngine([]provider.Provider{onDevice}, func(o *Options) { o.Fallback = fallback.NoOpEngine{} })

	// A one-shot caller goes straight to Execute; the daemon must still be
	// probed and selected.
	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, port.ProviderOnDeviceFoundation, res.Diagnostic.Provider)
	assert.False(t, res.Diagnostic.FallbackUsed)
	assert.Equal(t, summaryOut, string(res.Output))
}

func TestExecuteRetriesTransientOnce(t *testing.T) {
	flaky := onDeviceSpy(summaryOut)
	flaky.errs = []error{provider.Transient(fmt.Errorf("blip"))}
	e := newTestEngine([]provider.Provider{flaky}, nil)

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, summaryOut, string(res.Output))
	assert.Equal(t, 2, flaky.callCount(), "one retry after the transient failure")

	snap := e.Metrics().Snapshot()
	require.Len(t, snap.Providers, 1)
	assert.Equal(t, int64(1), snap.Providers[0].Retries)
}

func TestExecuteMovesOnAfterPermanentFailure(t *testing.T) {
	broken := onDeviceSpy(summaryOut)
	broken.errs = []error{provider.Permanent(fmt.Errorf("bad model")), provider.Permanent(fmt.Errorf("bad model"))}
	byo := byoSpy(summaryOut)
	e := newTestEngine([]provider.Provider{broken, byo}, nil)

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, port.ProviderBringYourOwn, res.Diagnostic.Provider)
	assert.Equal(t, 1, broken.callCount(), "no retry on permanent failure")
}

func TestExecuteRejectsInvalidProviderOutput(t *testing.T) {
	garbage := onDeviceSpy(`{"not":"a summary"}`)
	byo := byoSpy(summaryOut)
	e := newTestEngine([]provider.Provider{garbage, byo}, nil)

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, port.ProviderBringYourOwn, res.Diagnostic.Provider, "schema-violating output skips to the next candidate")
}

func TestExecuteFallsBackWhenNoProviderServes(t *testing.T) {
	e := newTestEngine(nil, nil)

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed)
	assert.Equal(t, port.ProviderFallbackHeuristic, res.Diagnostic.Provider)
	assert.Contains(t, res.Diagnostic.ReasonCodes, ReasonNoProviderSupportsPort)
	assert.Contains(t, res.Diagnostic.ReasonCodes, "provider=fallbackHeuristic")
}

func TestExecuteNoProviderNoFallback(t *testing.T) {
	e := newTestEngine(nil, func(o *Options) { o.Fallback = fallback.NoOpEngine{} })

	_, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.Error(t, err)
	re, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindCapabilityUnavailable, re.Kind)
	assert.Contains(t, re.Reasons, ReasonNoProviderSupportsPort)
	assert.Contains(t, re.Reasons, ReasonNoFallback)
}

func TestExecuteRewriteNeverFallsBack(t *testing.T) {
	e := newTestEngine(nil, nil)

	_, err := e.Execute(context.Background(), port.Rewrite,
		[]byte(`{"text":"hi","tone":"formal"}`), port.NewRequestContext(port.PrivacyNormal))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCapabilityUnavailable))
}

func TestExecuteInputValidation(t *testing.T) {
	spy := onDeviceSpy(summaryOut)
	e := newTestEngine([]provider.Provider{spy}, nil)

	_, err := e.Execute(context.Background(), port.Summarize, []byte(`{"maxSentences":2}`), port.NewRequestContext(port.PrivacyNormal))
	require.Error(t, err)
	re, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidationFailed, re.Kind)
	assert.Equal(t, "input", re.Direction)
	assert.Equal(t, 0, spy.callCount(), "invalid input never reaches a provider")
}

func TestExecuteUnknownPort(t *testing.T) {
	e := newTestEngine(nil, nil)
	_, err := e.Execute(context.Background(), port.ID("telepathy"), []byte(`{}`), port.NewRequestContext(port.PrivacyNormal))
	assert.True(t, IsKind(err, KindCapabilityUnavailable))
}

func TestKillSwitchDivertsToFallback(t *testing.T) {
	spy := onDeviceSpy(summaryOut)
	e := newTestEngine([]provider.Provider{spy}, func(o *Options) {
		o.Capability = policy.NewCapability([]port.ID{port.Summarize})
	})

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed)
	assert.Contains(t, res.Diagnostic.ReasonCodes, ReasonDisabledByPolicy)
	assert.Equal(t, 0, spy.callCount(), "kill-switch blocks every provider")
}

func TestKillSwitchWithoutFallbackIsDenied(t *testing.T) {
	spy := onDeviceSpy(`{"items":[]}`)
	e := newTestEngine([]provider.Provider{spy}, func(o *Options) {
		o.Capability = policy.NewCapability([]port.ID{port.SyllabusParse})
		o.Fallback = fallback.NoOpEngine{}
	})

	_, err := e.Execute(context.Background(), port.SyllabusParse,
		[]byte(`{"text":"Midterm exam 2026-10-20"}`), port.NewRequestContext(port.PrivacyNormal))
	require.Error(t, err)
	re, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindPolicyDenied, re.Kind)
	assert.Contains(t, re.Reasons, ReasonDisabledByPolicy)
	assert.Contains(t, re.Reasons, ReasonNoFallback)
	assert.Equal(t, 0, spy.callCount(), "disabled port never reaches a provider")
}

func TestAssistDisabledUsesFallbackOnly(t *testing.T) {
	spy := onDeviceSpy(summaryOut)
	e := newTestEngine([]provider.Provider{spy}, func(o *Options) {
		o.Settings = policy.StaticSettings(false)
	})

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed)
	assert.Contains(t, res.Diagnostic.ReasonCodes, ReasonLLMDisabled)
	assert.Equal(t, 0, spy.callCount(), "assist off means zero provider executions")
}

func TestAssistDisabledWithoutFallbackIsDenied(t *testing.T) {
	spy := byoSpy(`{"text":"rewritten"}`)
	e := newTestEngine([]provider.Provider{spy}, func(o *Options) {
		o.Settings = policy.StaticSettings(false)
	})

	_, err := e.Execute(context.Background(), port.Rewrite,
		[]byte(`{"text":"hi","tone":"formal"}`), port.NewRequestContext(port.PrivacyNormal))
	require.Error(t, err)
	re, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindPolicyDenied, re.Kind)
	assert.Contains(t, re.Reasons, ReasonLLMDisabled)
	assert.Contains(t, re.Reasons, ReasonNoFallback)
	assert.Equal(t, 0, spy.callCount())
}

func TestRateLimitDivertsToFallback(t *testing.T) {
	spy := onDeviceSpy(summaryOut)
	rl := policy.NewRateLimiter(policy.RateLimitConfig{GlobalPerMinute: 1, PortPerMinute: 1, Burst: 1})
	e := newTestEngine([]provider.Provider{spy}, func(o *Options) { o.RateLimiter = rl })

	_, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	require.Equal(t, 1, spy.callCount())

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed)
	assert.Contains(t, res.Diagnostic.ReasonCodes, ReasonRateLimited)
	assert.Equal(t, 1, spy.callCount(), "second call never reached the provider")
}

func TestPrivacyGateKeepsSensitivePortsLocal(t *testing.T) {
	byo := byoSpy(`{"items":[]}`)
	e := newTestEngine([]provider.Provider{byo}, nil)

	// syllabusParse is a sensitive port; bringYourOwn must never see it.
	res, err := e.Execute(context.Background(), port.SyllabusParse,
		[]byte(`{"text":"Midterm exam 2026-10-20"}`), port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed)
	assert.Equal(t, 0, byo.callCount(), "remote endpoint excluded for sensitive payloads")
}

func TestPrivacyGateOnDeviceOnly(t *testing.T) {
	byo := byoSpy(`{"days":[]}`)
	onDevice := onDeviceSpy(`{"days":[{"date":"2026-09-15","minutes":60}],"peakDate":"2026-09-15"}`)
	e := newTestEngine([]provider.Provider{byo, onDevice}, nil)

	res, err := e.Execute(context.Background(), port.WorkloadForecast,
		[]byte(`{"tasks":[{"id":"t1","estimatedMinutes":60,"due":"2026-09-15"}],"horizonDays":7}`),
		port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, port.ProviderOnDeviceFoundation, res.Diagnostic.Provider)
	assert.Equal(t, 0, byo.callCount())
}

func TestCallerPrivacyEscalation(t *testing.T) {
	byo := byoSpy(summaryOut)
	e := newTestEngine([]provider.Provider{byo}, nil)

	// Port is normal, but the caller marks the payload sensitive.
	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn,
		port.NewRequestContext(port.PrivacySensitive))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed)
	assert.Equal(t, 0, byo.callCount())
}

func TestProviderInputIsRedacted(t *testing.T) {
	spy := onDeviceSpy(summaryOut)
	e := newTestEngine([]provider.Provider{spy}, nil)

	in := []byte(`{"text":"First point. Contact jane.doe@example.edu for notes."}`)
	res, err := e.Execute(context.Background(), port.Summarize, in, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.NotContains(t, string(spy.lastInput), "jane.doe@example.edu")
	assert.Contains(t, string(spy.lastInput), "<email>")
	assert.Equal(t, "email=1", res.Diagnostic.Redaction)
}

// openPrivacy is a caller-supplied privacy implementation: a single switch
// for provider admission and pass-through scrubbing.
type openPrivacy struct{ allow bool }

func (p openPrivacy) Allows(port.ProviderID, port.PrivacyLevel) bool { return p.allow }

func (p openPrivacy) LevelFor(port.PrivacyLevel, port.ProviderID) policy.RedactionLevel {
	return policy.RedactLight
}

func (p openPrivacy) Redact(input []byte, _ policy.RedactionLevel) ([]byte, policy.Report, error) {
	return input, policy.Report{}, nil
}

func TestPrivacyPolicyIsSubstitutable(t *testing.T) {
	// A deny-all policy excludes even a healthy provider; the fallback serves.
	spy := onDeviceSpy(summaryOut)
	closed := newTestEngine([]provider.Provider{spy}, func(o *Options) {
		o.Privacy = openPrivacy{allow: false}
	})
	res, err := closed.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed)
	assert.Equal(t, 0, spy.callCount(), "injected policy overrides the shipped matrix")

	// An allow-all policy with pass-through scrubbing lets a remote endpoint
	// serve an on-device-only port, payload untouched.
	byo := byoSpy(`{"days":[{"date":"2026-09-15","minutes":60}],"peakDate":"2026-09-15"}`)
	open := newTestEngine([]provider.Provider{byo}, func(o *Options) {
		o.Privacy = openPrivacy{allow: true}
	})
	in := []byte(`{"tasks":[{"id":"mail jane.doe@example.edu","estimatedMinutes":60,"due":"2026-09-15"}],"horizonDays":7}`)
	res, err = open.Execute(context.Background(), port.WorkloadForecast, in, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, port.ProviderBringYourOwn, res.Diagnostic.Provider)
	assert.Contains(t, string(byo.lastInput), "jane.doe@example.edu")
}

// stalledProvider blocks until its call context expires.
type stalledProvider struct {
	id    port.ProviderID
	calls int
}

func (s *stalledProvider) ID() port.ProviderID      { return s.id }
func (s *stalledProvider) Available() bool          { return true }
func (s *stalledProvider) Supports(id port.ID) bool { return id.Valid() }

func (s *stalledProvider) Execute(ctx context.Context, _ port.ID, _ []byte, _ port.RequestContext) ([]byte, provider.Diagnostic, error) {
	s.calls++
	<-ctx.Done()
	return nil, provider.Diagnostic{Provider: s.id}, ctx.Err()
}

func TestCallBudgetExpiryStillReachesFallback(t *testing.T) {
	slow := &stalledProvider{id: port.ProviderOnDeviceFoundation}
	e := newTestEngine([]provider.Provider{slow}, func(o *Options) {
		o.CallTimeout = 30 * time.Millisecond
	})

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.FallbackUsed, "an exhausted call budget ends the provider walk, not the request")
	assert.Equal(t, 1, slow.calls, "deadline failures are never retried")
}

func TestCallBudgetExpiryWithoutFallbackIsTimeout(t *testing.T) {
	slow := &stalledProvider{id: port.ProviderOnDeviceFoundation}
	e := newTestEngine([]provider.Provider{slow}, func(o *Options) {
		o.CallTimeout = 30 * time.Millisecond
		o.Fallback = fallback.NoOpEngine{}
	})

	_, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout), "budget expiry without a fallback is a timeout, not unavailability")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFallbackDeterminismEnforced(t *testing.T) {
	f := &scriptedFallback{outputs: [][]byte{
		[]byte(`{"summary":"one"}`),
		[]byte(`{"summary":"two"}`),
	}}
	e := newTestEngine(nil, func(o *Options) { o.Fallback = f })

	first, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.NotContains(t, first.Diagnostic.ReasonCodes, ReasonNonDeterministicFallback)

	second, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Contains(t, second.Diagnostic.ReasonCodes, ReasonNonDeterministicFallback,
		"different output for an identical canonical input must be flagged")
}

func TestFallbackDeterminismIgnoresExcludedKeys(t *testing.T) {
	e := newTestEngine(nil, nil)

	a := []byte(`{"utterance":"add essay due friday","referenceDate":"2026-08-28"}`)
	b := []byte(`{"utterance":"add essay due friday","referenceDate":"2026-09-04"}`)

	ra, err := e.Execute(context.Background(), port.IntentToAction, a, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	rb, err := e.Execute(context.Background(), port.IntentToAction, b, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)

	assert.Equal(t, ra.Diagnostic.InputHash, rb.Diagnostic.InputHash)
	assert.NotContains(t, rb.Diagnostic.ReasonCodes, ReasonNonDeterministicFallback)
}

func TestExecuteCancellationSurfacesContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked := &spyProvider{id: port.ProviderOnDeviceFoundation, available: true}
	blocked.errs = []error{context.Canceled}
	e := newTestEngine([]provider.Provider{blocked}, nil)

	_, err := e.Execute(ctx, port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	_, isTyped := AsError(err)
	assert.False(t, isTyped, "cancellation is the caller's context error, not a routing failure")
	assert.Equal(t, 1, blocked.callCount(), "cancelled calls are never retried")
}

func TestGenericCallRoundTrip(t *testing.T) {
	e := newTestEngine(nil, nil)

	out, diag, err := Call[port.DurationInput, port.DurationOutput](
		context.Background(), e, port.EstimateTaskDuration,
		port.DurationInput{Title: "essay", Kind: "assignment"},
		port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, 120, out.EstimatedMinutes)
	assert.True(t, diag.FallbackUsed)
	assert.LessOrEqual(t, out.MinMinutes, out.EstimatedMinutes)
}

func TestMetricsAccumulate(t *testing.T) {
	spy := onDeviceSpy(summaryOut)
	e := newTestEngine([]provider.Provider{spy}, nil)

	_, err := e.Execute(context.Background(), port.Summarize, summarizeIn, port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)

	snap := e.Metrics().Snapshot()
	require.Len(t, snap.Providers, 1)
	assert.Equal(t, port.ProviderOnDeviceFoundation, snap.Providers[0].Provider)
	assert.Equal(t, int64(1), snap.Providers[0].Calls)
	assert.Equal(t, int64(0), snap.Providers[0].Errors)
	assert.Equal(t, int64(0), snap.FallbackUses)

	// A fallback-served call bumps the fallback counter.
	_, err = e.Execute(context.Background(), port.EstimateTaskDuration,
		[]byte(`{"title":"essay","kind":"assignment"}`), port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Metrics().Snapshot().FallbackUses)
}

func TestDiagnosticCarriesCorrelationID(t *testing.T) {
	e := newTestEngine(nil, nil)
	rc := port.NewRequestContext(port.PrivacyNormal)

	res, err := e.Execute(context.Background(), port.Summarize, summarizeIn, rc)
	require.NoError(t, err)
	assert.Equal(t, rc.CorrelationID.String(), res.Diagnostic.CorrelationID)

	var parsed port.SummarizeOutput
	require.NoError(t, json.Unmarshal(res.Output, &parsed))
	assert.NotEmpty(t, parsed.Summary)
}
