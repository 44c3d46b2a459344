package policy

// Settings exposes the process-wide assist master switch. The engine reads
// it on every call, so flipping the switch takes effect immediately without
// rebuilding the engine.
type Settings interface {
	// AssistEnabled reports whether model-backed assistance may run.
	// When false, only deterministic fallbacks serve requests.
	AssistEnabled() bool
}

// StaticSettings is a fixed-value Settings, used for tests and for configs
// without a dynamic settings source.
type StaticSettings bool

// AssistEnabled returns the fixed value.
func (s StaticSettings) AssistEnabled() bool { return bool(s) }
