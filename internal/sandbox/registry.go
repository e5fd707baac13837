package sandbox

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/open-swe/agent-engine/internal/config"
)

// Registry is the process-level holder of the selected Provider, built once
// from config by NewRegistry and passed to its users, per the re-architecture note in SPEC_FULL.md §9
// ("Global singletons... keep a process-level registry initialised from
// config; inject it via the coordinator so tests can substitute fakes").
type Registry struct {
	Provider Provider
	Selected ProviderType
}

// ProviderEndpoints configures the base URLs for the two remote backends.
type ProviderEndpoints struct {
	DaytonaLikeBaseURL string
	MicroVMLikeBaseURL string
}

// NewRegistry builds the Registry selected by cfg.SandboxProvider, per the
// selection rule in SPEC_FULL.md §4.1: "local" is chosen when the config
// declares local mode; otherwise the named provider, or a round-robin
// "multi" over both remote backends.
func NewRegistry(cfg *config.Config, endpoints ProviderEndpoints, localRoot string) (*Registry, error) {
	switch cfg.SandboxProvider {
	case config.SandboxProviderLocal:
		return &Registry{Provider: NewLocalProvider(localRoot), Selected: ProviderLocal}, nil
	case config.SandboxProviderA:
		return &Registry{
			Provider: newRateLimitedRemote(ProviderDaytonaLike, endpoints.DaytonaLikeBaseURL, firstOrEmpty(cfg.ProviderAAPIKeys)),
			Selected: ProviderDaytonaLike,
		}, nil
	case config.SandboxProviderB:
		return &Registry{
			Provider: newRateLimitedRemote(ProviderMicroVMLike, endpoints.MicroVMLikeBaseURL, firstOrEmpty(cfg.ProviderBAPIKeys)),
			Selected: ProviderMicroVMLike,
		}, nil
	case config.SandboxProviderMulti:
		a := newRateLimitedRemote(ProviderDaytonaLike, endpoints.DaytonaLikeBaseURL, firstOrEmpty(cfg.ProviderAAPIKeys))
		b := newRateLimitedRemote(ProviderMicroVMLike, endpoints.MicroVMLikeBaseURL, firstOrEmpty(cfg.ProviderBAPIKeys))
		return &Registry{Provider: NewMultiProvider(a, b), Selected: ProviderMulti}, nil
	default:
		return nil, fmt.Errorf("sandbox: unknown provider %q", cfg.SandboxProvider)
	}
}

func newRateLimitedRemote(name ProviderType, baseURL, apiKey string) *RemoteProvider {
	limiter := rate.NewLimiter(rate.Limit(5), 10)
	return NewRemoteProvider(name, baseURL, apiKey, limiter)
}

func firstOrEmpty(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
