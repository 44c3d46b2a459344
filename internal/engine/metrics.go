package engine

import (
	"sort"
	"sync"

	"github.com/itori-ai/aiengine/internal/port"
)

// ProviderMetrics are the accumulated counters for one backend.
type ProviderMetrics struct {
	Provider       port.ProviderID `json:"provider"`
	Calls          int64           `json:"calls"`
	Errors         int64           `json:"errors"`
	Retries        int64           `json:"retries"`
	TotalLatencyMs int64           `json:"totalLatencyMs"`
	TokensUsed     int64           `json:"tokensUsed"`
}

// AvgLatencyMs returns mean latency across successful and failed calls.
func (m ProviderMetrics) AvgLatencyMs() int64 {
	if m.Calls == 0 {
		return 0
	}
	return m.TotalLatencyMs / m.Calls
}

// Metrics tracks per-provider counters plus engine-level fallback usage.
// Safe for concurrent use.
type Metrics struct {
	mu           sync.Mutex
	providers    map[port.ProviderID]*ProviderMetrics
	fallbackUses int64
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{providers: map[port.ProviderID]*ProviderMetrics{}}
}

func (m *Metrics) get(id port.ProviderID) *ProviderMetrics {
	pm, ok := m.providers[id]
	if !ok {
		pm = &ProviderMetrics{Provider: id}
		m.providers[id] = pm
	}
	return pm
}

// RecordCall counts one provider invocation.
func (m *Metrics) RecordCall(id port.ProviderID, latencyMs int64, tokens int, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm := m.get(id)
	pm.Calls++
	pm.TotalLatencyMs += latencyMs
	pm.TokensUsed += int64(tokens)
	if failed {
		pm.Errors++
	}
}

// RecordRetry counts one transient retry.
func (m *Metrics) RecordRetry(id port.ProviderID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(id).Retries++
}

// RecordFallback counts one request served by the deterministic fallback.
func (m *Metrics) RecordFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackUses++
}

// Snapshot returns a copy of all counters, providers sorted by ID.
type MetricsSnapshot struct {
	Providers    []ProviderMetrics `json:"providers"`
	FallbackUses int64             `json:"fallbackUses"`
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := MetricsSnapshot{FallbackUses: m.fallbackUses}
	for _, pm := range m.providers {
		out.Providers = append(out.Providers, *pm)
	}
	sort.Slice(out.Providers, func(i, j int) bool {
		return out.Providers[i].Provider < out.Providers[j].Provider
	})
	return out
}
