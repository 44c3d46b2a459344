package provider

import (
	"context"
	"time"

	"github.com/itori-ai/aiengine/internal/port"
)

// BringYourOwn sends requests to a user-configured remote endpoint with the
// user's own API key. The privacy policy keeps sensitive and on-device-only
// payloads away from it; everything that does reach it has been redacted.
type BringYourOwn struct {
	baseProvider
}

// NewBringYourOwn creates the bring-your-own provider.
func NewBringYourOwn(cfg *Config) *BringYourOwn {
	return &BringYourOwn{
		baseProvider: newBaseProvider(port.ProviderBringYourOwn, cfg),
	}
}

// Supports reports true for every catalog port; the privacy policy decides
// which requests may actually reach a remote backend.
func (p *BringYourOwn) Supports(id port.ID) bool {
	return id.Valid()
}

// Available reports whether the user has configured both an endpoint and a
// key. No network probe: remote reachability is discovered per call, and an
// unconfigured provider must read as unavailable without I/O.
func (p *BringYourOwn) Available() bool {
	return p.config.Endpoint != "" && p.config.APIKey != ""
}

// Execute runs the port through the remote chat endpoint.
func (p *BringYourOwn) Execute(ctx context.Context, id port.ID, input []byte, rc port.RequestContext) ([]byte, Diagnostic, error) {
	start := time.Now()
	out, tokens, model, err := p.completePort(ctx, id, input, p.config.APIKey)
	diag := Diagnostic{
		Provider:   p.id,
		Model:      model,
		LatencyMs:  time.Since(start).Milliseconds(),
		TokensUsed: tokens,
	}
	if diag.Model == "" {
		diag.Model = p.config.Model
	}
	return out, diag, err
}
