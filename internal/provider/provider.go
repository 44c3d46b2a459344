// Package provider implements the capability backends the routing engine
// dispatches to: the on-device foundation runtime, the embedded local model,
// and a user-configured bring-your-own endpoint.
package provider

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/itori-ai/aiengine/internal/port"
)

// Security limits to prevent unbounded memory usage
const (
	// MaxErrorBodySize limits how much error response body we read (1MB)
	MaxErrorBodySize = 1 * 1024 * 1024

	// MaxResponseSize limits total response size (10MB). Port outputs are
	// small structured JSON; anything near this limit is runaway generation.
	MaxResponseSize = 10 * 1024 * 1024
)

// readLimitedBody reads up to maxBytes from r, returning the bytes read.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Provider is a capability backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// ID returns the provider identifier.
	ID() port.ProviderID

	// Available reports whether the backend can serve requests right now.
	// It must be cheap and non-blocking; implementations cache probe
	// results and never perform I/O here.
	Available() bool

	// Supports reports whether the backend can serve the given port.
	Supports(id port.ID) bool

	// Execute runs one port invocation. Input and output are the port's
	// JSON payloads; redaction has already happened by the time input
	// arrives here.
	Execute(ctx context.Context, id port.ID, input []byte, rc port.RequestContext) ([]byte, Diagnostic, error)
}

// Refresher is implemented by providers whose availability depends on an
// external process and therefore needs periodic re-probing.
type Refresher interface {
	// Refresh re-probes the backend and updates the cached availability.
	Refresh(ctx context.Context)
}

// Diagnostic describes how a provider served one request.
type Diagnostic struct {
	// Provider that produced the output.
	Provider port.ProviderID `json:"provider"`

	// Model that ran, when the backend exposes one.
	Model string `json:"model,omitempty"`

	// LatencyMs is wall time spent inside the provider.
	LatencyMs int64 `json:"latencyMs"`

	// TokensUsed as reported by the backend, 0 if unknown.
	TokensUsed int `json:"tokensUsed,omitempty"`

	// Notes carries free-form provider annotations (redaction summary,
	// cache hits). Never payload content.
	Notes map[string]string `json:"notes,omitempty"`
}

// Config contains configuration for a provider.
type Config struct {
	// Endpoint is the API base URL.
	Endpoint string

	// APIKey for authentication (bringYourOwn only).
	APIKey string

	// Model is the model identifier to request.
	Model string

	// ModelPath is the on-disk model location (localEmbedded only).
	ModelPath string

	// MaxTokens default for responses.
	MaxTokens int

	// Timeout for API calls.
	Timeout time.Duration

	// ProbeTTL is how long a cached availability probe stays fresh.
	ProbeTTL time.Duration
}

// DefaultConfig returns sensible defaults for a provider.
func DefaultConfig(id port.ProviderID) *Config {
	switch id {
	case port.ProviderOnDeviceFoundation:
		return &Config{
			Endpoint:  "http://127.0.0.1:11434",
			Model:     "foundation-small",
			MaxTokens: 2048,
			Timeout:   30 * time.Second,
			ProbeTTL:  30 * time.Second,
		}
	case port.ProviderLocalEmbedded:
		return &Config{
			Endpoint:  "http://127.0.0.1:8080",
			Model:     "embedded-3b-q4",
			MaxTokens: 1024,
			Timeout:   45 * time.Second,
			ProbeTTL:  30 * time.Second,
		}
	case port.ProviderBringYourOwn:
		return &Config{
			Endpoint:  "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 2048,
			Timeout:   60 * time.Second,
			ProbeTTL:  30 * time.Second,
		}
	default:
		return &Config{
			MaxTokens: 2048,
			Timeout:   30 * time.Second,
			ProbeTTL:  30 * time.Second,
		}
	}
}

// baseProvider provides common functionality for HTTP-based providers.
type baseProvider struct {
	id     port.ProviderID
	config *Config
	client *http.Client
}

func newBaseProvider(id port.ProviderID, cfg *Config) baseProvider {
	if cfg == nil {
		cfg = DefaultConfig(id)
	}
	defaults := DefaultConfig(id)
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ProbeTTL == 0 {
		cfg.ProbeTTL = defaults.ProbeTTL
	}
	return baseProvider{
		id:     id,
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// ID returns the provider identifier.
func (b *baseProvider) ID() port.ProviderID {
	return b.id
}

// probeCache holds a TTL-cached availability result so that Available() never
// blocks on the network.
type probeCache struct {
	mu        sync.RWMutex
	available bool
	checkedAt time.Time
	ttl       time.Duration
}

// fresh reports the cached value and whether it is still within TTL.
func (c *probeCache) fresh(now time.Time) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.checkedAt.IsZero() || now.Sub(c.checkedAt) > c.ttl {
		return false, false
	}
	return c.available, true
}

func (c *probeCache) store(available bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = available
	c.checkedAt = now
}
