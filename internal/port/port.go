// Package port defines the capability contract surface of the routing engine:
// port identifiers, provider identifiers, privacy levels, per-port contracts
// with input/output validation, and the canonical input hashing used for
// dedup and fallback determinism checks.
//
// Everything in this package is pure data and pure functions. It has no
// dependency on providers, policies, or the engine.
package port

import (
	"time"

	"github.com/google/uuid"
)

// ID identifies a single narrow AI capability. The set is closed: adding a
// port means adding a contract to the catalog, and an identifier is never
// reused for a different input/output shape.
type ID string

const (
	IntentToAction       ID = "intentToAction"
	Summarize            ID = "summarize"
	Rewrite              ID = "rewrite"
	StudyQuestionGen     ID = "studyQuestionGen"
	SyllabusParse        ID = "syllabusParse"
	EstimateTaskDuration ID = "estimateTaskDuration"
	WorkloadForecast     ID = "workloadForecast"
	GenerateStudyPlan    ID = "generateStudyPlan"
	SchedulePlacement    ID = "schedulePlacement"
	ConflictResolution   ID = "conflictResolution"
)

// AllIDs returns every known port identifier in stable catalog order.
func AllIDs() []ID {
	return []ID{
		IntentToAction,
		Summarize,
		Rewrite,
		StudyQuestionGen,
		SyllabusParse,
		EstimateTaskDuration,
		WorkloadForecast,
		GenerateStudyPlan,
		SchedulePlacement,
		ConflictResolution,
	}
}

// String returns the wire name of the port.
func (id ID) String() string { return string(id) }

// Valid reports whether the identifier belongs to the closed set.
func (id ID) Valid() bool {
	_, ok := catalog[id]
	return ok
}

// ProviderID identifies a capability backend. Contracts declare their
// preference order over this closed set; the concrete implementations live in
// the provider package.
type ProviderID string

const (
	// ProviderOnDeviceFoundation is the platform foundation-model runtime
	// reachable on the local machine.
	ProviderOnDeviceFoundation ProviderID = "onDeviceFoundation"

	// ProviderLocalEmbedded is the small embedded model shipped with the app.
	ProviderLocalEmbedded ProviderID = "localEmbedded"

	// ProviderBringYourOwn is a user-configured remote endpoint with the
	// user's own API key.
	ProviderBringYourOwn ProviderID = "bringYourOwn"

	// ProviderFallbackHeuristic is not a registered provider; it appears in
	// diagnostics when the deterministic fallback path served a request.
	ProviderFallbackHeuristic ProviderID = "fallbackHeuristic"
)

// String returns the wire name of the provider.
func (p ProviderID) String() string { return string(p) }

// PrivacyLevel is the caller-declared sensitivity tier of a request, and the
// minimum tier a port demands for its payloads.
type PrivacyLevel string

const (
	PrivacyNormal       PrivacyLevel = "normal"
	PrivacySensitive    PrivacyLevel = "sensitive"
	PrivacyOnDeviceOnly PrivacyLevel = "onDeviceOnly"
)

// StricterOf returns the stricter of two privacy levels. Ordering:
// normal < sensitive < onDeviceOnly.
func StricterOf(a, b PrivacyLevel) PrivacyLevel {
	if rank(a) >= rank(b) {
		return a
	}
	return b
}

func rank(l PrivacyLevel) int {
	switch l {
	case PrivacyOnDeviceOnly:
		return 2
	case PrivacySensitive:
		return 1
	default:
		return 0
	}
}

// MergePolicy describes how repeated results for the same input are combined
// by callers that cache or dedup port outputs.
type MergePolicy string

const (
	// MergeDefaultOnly keeps the first result and ignores later ones.
	MergeDefaultOnly MergePolicy = "defaultOnly"

	// MergePreferHigherConfidence replaces a cached result when a later one
	// carries higher confidence.
	MergePreferHigherConfidence MergePolicy = "preferHigherConfidence"
)

// Contract is the static, immutable description of a port. One contract
// exists per ID; callers obtain them through Lookup and never construct them.
type Contract struct {
	// ID is the port this contract describes.
	ID ID

	// Name is the human-readable capability name.
	Name string

	// Privacy is the level this port's payloads require at minimum.
	Privacy PrivacyLevel

	// Merge controls how repeated results for one input hash combine.
	Merge MergePolicy

	// HashExcludedKeys are input object keys (at any depth) dropped before
	// computing the input hash. Volatile fields like reference timestamps go
	// here so they do not bust caches.
	HashExcludedKeys []string

	// UnorderedArrayKeys are input keys whose array element order is
	// insignificant for equality.
	UnorderedArrayKeys []string

	// SupportsDeterministicFallback reports whether a deterministic,
	// provider-independent rendition of this port can exist at all.
	SupportsDeterministicFallback bool

	// PreferredProviders is the authoritative provider order for this port.
	// The engine picks the first viable entry, not the first registered
	// provider.
	PreferredProviders []ProviderID

	// ValidateInput rejects malformed input before any provider runs.
	ValidateInput func(raw []byte) error

	// ValidateOutput rejects malformed output after any provider returns.
	ValidateOutput func(raw []byte) error
}

// defaultPreference is the provider order used by every contract that does
// not override it.
var defaultPreference = []ProviderID{
	ProviderOnDeviceFoundation,
	ProviderLocalEmbedded,
	ProviderBringYourOwn,
	ProviderFallbackHeuristic,
}

// RequestContext carries per-call metadata. A fresh context is created for
// every invocation and never persisted.
type RequestContext struct {
	// CorrelationID ties the call to logs, audit entries and diagnostics.
	CorrelationID uuid.UUID

	// Privacy is the effective privacy level for this call. The engine
	// raises it to the port's declared requirement if the caller asked for
	// something weaker.
	Privacy PrivacyLevel

	// Deadline bounds the whole provider-then-fallback chain. Zero means no
	// deadline beyond what ctx carries.
	Deadline time.Time

	// IssuedAt is when the request was created.
	IssuedAt time.Time
}

// NewRequestContext returns a context with a fresh correlation ID at the
// given privacy level.
func NewRequestContext(privacy PrivacyLevel) RequestContext {
	if privacy == "" {
		privacy = PrivacyNormal
	}
	return RequestContext{
		CorrelationID: uuid.New(),
		Privacy:       privacy,
		IssuedAt:      time.Now(),
	}
}
