// Package llmgateway's Gateway type ties a logical (provider, task) pair to
// a concrete, API-key-bound Client, applying the resolution order from
// SPEC_FULL.md §4.2. Grounded on the teacher's adaptive rate limiter
// middleware shape (features/model/middleware/ratelimit.go) for the
// Client-wrapping convention, generalized here to key selection instead of
// throughput control.
package llmgateway

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// KeySource resolves the credential a Gateway should use for a provider: an
// operator-wide allow-listed key, or a principal-specific decrypted key when
// the caller has supplied one (SPEC_FULL.md §4.2 API-key resolution).
type KeySource interface {
	// ResolveKey returns the API key to use for provider, preferring
	// principalID's own decrypted key when present and falling back to the
	// allow-listed operator key.
	ResolveKey(ctx context.Context, provider Provider, principalID string) (string, error)
}

// Gateway is the C2 LLM Provider Gateway: it resolves a ModelLoadConfig for
// a (provider, task) pair, resolves the credential, and constructs (and
// caches) the bound Client.
type Gateway struct {
	keys      KeySource
	bedrockRT *bedrockruntime.Client
	run       RunConfig
	maxTokens int

	mu      sync.Mutex
	clients map[clientKey]Client
}

type clientKey struct {
	provider  Provider
	principal string
	model     string
}

// NewGateway constructs a Gateway. bedrockRT may be nil if Bedrock is never
// requested.
func NewGateway(keys KeySource, bedrockRT *bedrockruntime.Client, run RunConfig, maxTokens int) *Gateway {
	return &Gateway{keys: keys, bedrockRT: bedrockRT, run: run, maxTokens: maxTokens, clients: map[clientKey]Client{}}
}

// Resolve returns a Client bound to the model resolved for (provider, task),
// constructing and caching it on first use per (provider, principal, model).
func (g *Gateway) Resolve(ctx context.Context, provider Provider, task LLMTask, principalID string) (Client, ModelLoadConfig, error) {
	cfg := BuildLoadConfig(provider, task, g.run, g.maxTokens, nil)
	if cfg.ModelName == "" {
		return nil, cfg, ErrEmptyModelName
	}
	key := clientKey{provider: provider, principal: principalID, model: cfg.ModelName}

	g.mu.Lock()
	if c, ok := g.clients[key]; ok {
		g.mu.Unlock()
		return c, cfg, nil
	}
	g.mu.Unlock()

	client, err := g.build(ctx, provider, cfg, principalID)
	if err != nil {
		return nil, cfg, err
	}

	g.mu.Lock()
	g.clients[key] = client
	g.mu.Unlock()
	return client, cfg, nil
}

func (g *Gateway) build(ctx context.Context, provider Provider, cfg ModelLoadConfig, principalID string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		apiKey, err := g.keys.ResolveKey(ctx, provider, principalID)
		if err != nil {
			return nil, err
		}
		return NewAnthropicClient(apiKey, cfg)
	case ProviderOpenAI:
		apiKey, err := g.keys.ResolveKey(ctx, provider, principalID)
		if err != nil {
			return nil, err
		}
		return NewOpenAIClient(apiKey, cfg)
	case ProviderBedrock:
		if g.bedrockRT == nil {
			return nil, ErrUnknownProvider
		}
		return NewBedrockClient(g.bedrockRT, cfg)
	default:
		return nil, ErrUnknownProvider
	}
}
