package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/itori-ai/aiengine/internal/port"
)

// OnDeviceFoundation talks to the platform foundation-model daemon on
// localhost over its OpenAI-compatible surface. It is the first preference
// for every port: payloads never leave the machine.
type OnDeviceFoundation struct {
	baseProvider
	probe probeCache
}

// NewOnDeviceFoundation creates the on-device foundation provider.
func NewOnDeviceFoundation(cfg *Config) *OnDeviceFoundation {
	p := &OnDeviceFoundation{
		baseProvider: newBaseProvider(port.ProviderOnDeviceFoundation, cfg),
	}
	p.probe.ttl = p.config.ProbeTTL
	return p
}

// Supports reports true for every catalog port: the foundation model is the
// general-purpose backend.
func (p *OnDeviceFoundation) Supports(id port.ID) bool {
	return id.Valid()
}

// Available returns the cached probe result. A stale or missing probe reads
// as unavailable until Refresh runs; the engine refreshes before snapshots
// and on demand when the preference walk meets a cold provider.
func (p *OnDeviceFoundation) Available() bool {
	ok, fresh := p.probe.fresh(time.Now())
	return fresh && ok
}

// Refresh probes the daemon's model list and caches whether the configured
// model is loaded. A daemon with no models is not a usable backend.
func (p *OnDeviceFoundation) Refresh(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.probe.store(p.probeOnce(probeCtx), time.Now())
}

func (p *OnDeviceFoundation) probeOnce(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoint+"/models", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}
	for _, m := range result.Data {
		if m.ID == p.config.Model {
			return true
		}
	}
	return false
}

// Execute runs the port through the daemon's chat endpoint in JSON mode.
func (p *OnDeviceFoundation) Execute(ctx context.Context, id port.ID, input []byte, rc port.RequestContext) ([]byte, Diagnostic, error) {
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
