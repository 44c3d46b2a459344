package engine

import (
	"context"

	"github.com/itori-ai/aiengine/internal/port"
	"github.com/itori-ai/aiengine/internal/provider"
)

// PortAvailability describes whether a port can currently serve and why.
type PortAvailability struct {
	Port      port.ID           `json:"port"`
	Name      string            `json:"name"`
	Available bool              `json:"available"`
	Providers []port.ProviderID `json:"providers,omitempty"`

	// FallbackOnly marks ports that would serve, but only through the
	// deterministic fallback.
	FallbackOnly bool `json:"fallbackOnly"`

	// Reasons accumulates every applicable reason code; negative codes do
	// not short-circuit, so a snapshot explains the whole picture.
	Reasons []string `json:"reasons,omitempty"`
}

// Availability evaluates one port without executing anything. Providers are
// judged at the port's declared privacy requirement, so a snapshot reflects
// what a typical call to that port would see.
func (e *Engine) Availability(id port.ID) PortAvailability {
	c, err := port.Lookup(id)
	if err != nil {
		return PortAvailability{Port: id, Available: false, Reasons: []string{"unknownPort"}}
	}

	pa := PortAvailability{Port: id, Name: c.Name}

	enabled := e.capability.PortEnabled(id)
	if !enabled {
		pa.Reasons = append(pa.Reasons, ReasonDisabledByPolicy)
	}
	assist := e.settings.AssistEnabled()
	if !assist {
		pa.Reasons = append(pa.Reasons, ReasonLLMDisabled)
	}
	rateOK := e.rate.Allows(id)
	if !rateOK {
		pa.Reasons = append(pa.Reasons, ReasonRateLimited)
	}

	sawSupport := false
	if enabled && assist && rateOK {
		for _, pid := range c.PreferredProviders {
			if pid == port.ProviderFallbackHeuristic {
				continue
			}
			prov, ok := e.byID[pid]
			if !ok || !prov.Supports(id) {
				continue
			}
			sawSupport = true
			if !e.privacy.Allows(pid, c.Privacy) {
				continue
			}
			if !prov.Available() {
				continue
			}
			pa.Providers = append(pa.Providers, pid)
			pa.Reasons = append(pa.Reasons, reasonProvider(pid))
		}
		if !sawSupport {
			pa.Reasons = append(pa.Reasons, ReasonNoProviderSupportsPort)
		} else if len(pa.Providers) == 0 {
			pa.Reasons = append(pa.Reasons, ReasonNoProviderAvailable)
		}
	}

	// noFallback explains a negative or degraded result only; a port served
	// directly by a provider does not report its missing fallback.
	fallbackOK := e.fallbackUsable(c)
	if !fallbackOK && len(pa.Providers) == 0 {
		pa.Reasons = append(pa.Reasons, ReasonNoFallback)
	}

	// The gates suppress the provider path only; a killed or throttled
	// port still reports available when its fallback can serve.
	pa.Available = len(pa.Providers) > 0 || fallbackOK
	pa.FallbackOnly = pa.Available && len(pa.Providers) == 0
	return pa
}

// Snapshot refreshes probing providers once, then evaluates every catalog
// port. The refresh keeps Available() calls inside the loop I/O-free.
func (e *Engine) Snapshot(ctx context.Context) []PortAvailability {
	e.RefreshProviders(ctx)
	out := make([]PortAvailability, 0, len(port.AllIDs()))
	for _, id := range port.AllIDs() {
		out = append(out, e.Availability(id))
	}
	return out
}

// RefreshProviders re-probes every provider that supports refreshing.
func (e *Engine) RefreshProviders(ctx context.Context) {
	for _, prov := range e.byID {
		if r, ok := prov.(provider.Refresher); ok {
			r.Refresh(ctx)
		}
	}
}
