package policy

import "github.com/itori-ai/aiengine/internal/port"

// Capability is the per-port kill-switch. Ports listed in the config's
// disabled set refuse before any other gate is consulted.
type Capability struct {
	disabled map[port.ID]bool
}

// NewCapability builds the kill-switch from the disabled port list.
func NewCapability(disabled []port.ID) *Capability {
	m := make(map[port.ID]bool, len(disabled))
	for _, id := range disabled {
		m[id] = true
	}
	return &Capability{disabled: m}
}

// PortEnabled reports whether the port may run at all.
func (c *Capability) PortEnabled(id port.ID) bool {
	return !c.disabled[id]
}
