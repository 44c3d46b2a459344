package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/itori-ai/aiengine/internal/port"
)

// Kind classifies a routing failure for callers. Provider-level failures are
// internal routing decisions and never surface as their own kind; callers see
// the outcome of the whole chain.
type Kind string

const (
	// KindCapabilityUnavailable means no path could serve the port: killed
	// by policy, no viable provider and no fallback.
	KindCapabilityUnavailable Kind = "capabilityUnavailable"

	// KindPolicyDenied means a gate refused the call and no fallback could
	// step in (assist switched off, rate limited).
	KindPolicyDenied Kind = "policyDenied"

	// KindValidationFailed means the input or the final output violated the
	// port's schema.
	KindValidationFailed Kind = "validationFailed"

	// KindFallbackFailed means the deterministic fallback was the last
	// resort and it errored.
	KindFallbackFailed Kind = "fallbackFailed"

	// KindTimeout means the overall call budget ran out.
	KindTimeout Kind = "timeout"
)

// Error is the typed failure returned by Execute.
type Error struct {
	Kind Kind
	Port port.ID

	// Direction is "input" or "output" for KindValidationFailed.
	Direction string

	// Reasons accumulates routing reason codes, mirroring availability.
	Reasons []string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Port, e.Kind)
	if e.Direction != "" {
		fmt.Fprintf(&b, " (%s)", e.Direction)
	}
	if len(e.Reasons) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Reasons, ","))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a typed routing error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsKind reports whether err is a routing error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// Routing reason codes. Negative codes accumulate during candidate
// evaluation instead of short-circuiting, so diagnostics explain every
// branch not taken.
const (
	ReasonDisabledByPolicy         = "disabledByPolicy"
	ReasonLLMDisabled              = "llmDisabled"
	ReasonRateLimited              = "rateLimited"
	ReasonNoProviderSupportsPort   = "noProviderSupportsPort"
	ReasonNoProviderAvailable      = "noProviderAvailable"
	ReasonNoFallback               = "noFallback"
	ReasonNonDeterministicFallback = "nonDeterministicFallback"
)

// reasonProvider marks a provider as the serving (or viable) backend.
func reasonProvider(id port.ProviderID) string {
	return "provider=" + string(id)
}
