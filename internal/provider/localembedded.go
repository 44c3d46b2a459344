package provider

import (
	"context"
	"os"
	"time"

	"github.com/itori-ai/aiengine/internal/port"
)

// LocalEmbedded drives the small quantized model shipped with the app, served
// by an embedded runtime on localhost. It handles the narrow extraction ports
// well and skips open-ended generation.
type LocalEmbedded struct {
	baseProvider
	probe probeCache
}

// embeddedPorts is the subset the small model is tuned for. Generation-heavy
// ports (rewrite, study questions, plans) need the foundation model or a
// remote backend.
var embeddedPorts = map[port.ID]bool{
	port.IntentToAction:       true,
	port.Summarize:            true,
	port.SyllabusParse:        true,
	port.EstimateTaskDuration: true,
	port.WorkloadForecast:     true,
}

// NewLocalEmbedded creates the embedded-model provider.
func NewLocalEmbedded(cfg *Config) *LocalEmbedded {
	p := &LocalEmbedded{
		baseProvider: newBaseProvider(port.ProviderLocalEmbedded, cfg),
	}
	p.probe.ttl = p.config.ProbeTTL
	return p
}

// Supports reports whether the embedded model is tuned for the port.
func (p *LocalEmbedded) Supports(id port.ID) bool {
	return embeddedPorts[id]
}

// Available returns the cached probe result.
func (p *LocalEmbedded) Available() bool {
	ok, fresh := p.probe.fresh(time.Now())
	return fresh && ok
}

// Refresh re-checks that the model file is present on disk. The runtime loads
// it lazily, so a present file means the backend can serve.
func (p *LocalEmbedded) Refresh(_ context.Context) {
	p.probe.store(p.modelFilePresent(), time.Now())
}

func (p *LocalEmbedded) modelFilePresent() bool {
	if p.config.ModelPath == "" {
		return false
	}
	info, err := os.Stat(p.config.ModelPath)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Execute runs the port through the embedded runtime's chat endpoint.
func (p *LocalEmbedded) Execute(ctx context.Context, id port.ID, input []byte, rc port.RequestContext) ([]byte, Diagnostic, error) {
	start := time.Now()
	out, tokens, model, err := p.completePort(ctx, id, input, "")
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
