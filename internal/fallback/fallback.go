// Package fallback provides the deterministic degraded path the routing
// engine uses when no model-backed provider can serve a request.
package fallback

import (
	"context"
	"fmt"

	"github.com/itori-ai/aiengine/internal/port"
)

// Engine serves ports without a model. Implementations must be pure: for a
// given port, inputs that are equal under the port's canonical hash must
// produce byte-identical outputs.
type Engine interface {
	// CanFallback reports whether this engine can serve the port.
	CanFallback(id port.ID) bool

	// Execute serves the port deterministically.
	Execute(ctx context.Context, id port.ID, input []byte, rc port.RequestContext) ([]byte, error)
}

// NoOpEngine refuses every port. It is the default wired into a fresh
// engine: degraded answers are opt-in, never silently on.
type NoOpEngine struct{}

// CanFallback always reports false.
func (NoOpEngine) CanFallback(port.ID) bool { return false }

// Execute always fails.
func (NoOpEngine) Execute(_ context.Context, id port.ID, _ []byte, _ port.RequestContext) ([]byte, error) {
	return nil, fmt.Errorf("no fallback for port %s", id)
}
