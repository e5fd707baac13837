package llmgateway

import "strings"

// ValidateThoughtSignature normalises a reasoning provider's signature
// value. Per spec.md:67, a provider may return multiple concatenated
// signatures in one string; this is detected by '=' base64 padding
// appearing mid-string rather than only at the very end, and the last
// signature after the final mid-string padding run is taken.
func ValidateThoughtSignature(sig string) (string, error) {
	trimmed := strings.TrimSpace(sig)
	if trimmed == "" {
		return "", nil
	}
	return lastConcatenatedSignature(trimmed), nil
}

// lastConcatenatedSignature walks every run of '=' characters in s; a run
// followed by further characters is mid-string padding marking the
// boundary between two concatenated signatures, so everything after it
// becomes the new candidate. A run at the very end of s is just the final
// signature's own base64 padding and is left alone.
func lastConcatenatedSignature(s string) string {
	last := s
	pos := 0
	for pos < len(s) {
		idx := strings.IndexByte(s[pos:], '=')
		if idx == -1 {
			break
		}
		start := pos + idx
		end := start
		for end < len(s) && s[end] == '=' {
			end++
		}
		if end < len(s) {
			last = s[end:]
		}
		pos = end
	}
	return last
}

// BuildThinking constructs the Thinking config attached to a Request when
// cfg.ThinkingModel is set.
func BuildThinking(cfg ModelLoadConfig) *Thinking {
	if !cfg.ThinkingModel {
		return nil
	}
	budget := cfg.ThinkingBudgetTokens
	if budget <= 0 {
		budget = defaultThinkingBudget
	}
	return &Thinking{Enable: true, BudgetTokens: budget}
}
