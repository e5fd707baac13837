package llmgateway

import "errors"

// Sentinel errors, grounded on runtime/agent/model/provider_error.go's
// wrap-and-classify convention.
var (
	ErrNoAPIKey        = errors.New("llmgateway: no API key available for provider")
	ErrUnknownProvider = errors.New("llmgateway: unknown provider")
	ErrEmptyModelName  = errors.New("llmgateway: resolved model name is empty")
)

// ProviderError wraps a provider SDK error with the provider and model that
// produced it, so C3's circuit breaker and fallback ladder can log and
// classify without re-parsing provider-specific error shapes.
type ProviderError struct {
	Provider Provider
	Model    string
	Err      error
	// Throttled is set when the provider classified this error as a rate
	// limit rather than an outage, so callers can distinguish "back off"
	// from "this model is down" without re-parsing the wrapped error.
	Throttled bool
}

func (e *ProviderError) Error() string {
	return "llmgateway: " + string(e.Provider) + "/" + e.Model + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }
