package llmgateway

import (
	"os"
	"strconv"
	"strings"
)

// ModelLoadConfig is the concrete resolved configuration the gateway builds
// a Client from, per SPEC_FULL.md §4.2.
type ModelLoadConfig struct {
	Provider             Provider
	ModelName            string
	Temperature          *float64
	MaxTokens            int
	ThinkingModel        bool
	ThinkingBudgetTokens int
}

// defaultModels is the built-in defaults table, step (3) of the resolution
// order.
var defaultModels = map[Provider]map[LLMTask]string{
	ProviderAnthropic: {
		TaskPlanner:    "claude-opus-4-5",
		TaskProgrammer: "claude-sonnet-4-5",
		TaskReviewer:   "claude-sonnet-4-5",
		TaskRouter:     "claude-haiku-4-5",
		TaskSummarizer: "claude-haiku-4-5",
	},
	ProviderOpenAI: {
		TaskPlanner:    "gpt-5",
		TaskProgrammer: "gpt-5",
		TaskReviewer:   "gpt-5",
		TaskRouter:     "o4-mini",
		TaskSummarizer: "o4-mini",
	},
	ProviderBedrock: {
		TaskPlanner:    "anthropic.claude-opus-4-5",
		TaskProgrammer: "anthropic.claude-sonnet-4-5",
		TaskReviewer:   "anthropic.claude-sonnet-4-5",
		TaskRouter:     "anthropic.claude-haiku-4-5",
		TaskSummarizer: "anthropic.claude-haiku-4-5",
	},
}

// temperatureRequiresOne lists provider/model-name-prefix families that
// require temperature = 1.0 to avoid degenerate loops (SPEC_FULL.md §4.2).
var temperatureRequiresOne = []string{"o1", "o3", "o4", "gpt-5"}

// reasoningPrefixes lists the markers that identify a "thinking" model,
// alongside the explicit "extended-thinking:" qualifier.
var reasoningPrefixes = []string{"o1", "o3", "o4"}

const extendedThinkingQualifier = "extended-thinking:"
const defaultThinkingBudget = 5000

// RunConfig carries the caller-supplied per-run overrides consumed at
// resolution step (1).
type RunConfig struct {
	ModelOverrides map[LLMTask]string // per-task override, keyed by LLMTask
}

// ResolveModelName implements the resolution order from SPEC_FULL.md §4.2:
// (1) per-task override in run config; (2) environment variable
// {PROVIDER}_{TASK}_MODEL; (3) built-in defaults table.
func ResolveModelName(provider Provider, task LLMTask, run RunConfig) string {
	if run.ModelOverrides != nil {
		if m, ok := run.ModelOverrides[task]; ok && m != "" {
			return m
		}
	}
	envKey := strings.ToUpper(string(provider)) + "_" + strings.ToUpper(string(task)) + "_MODEL"
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	if byTask, ok := defaultModels[provider]; ok {
		if m, ok := byTask[task]; ok {
			return m
		}
	}
	return ""
}

// IsThinkingModel reports whether modelName begins with a reasoning marker
// or the explicit extended-thinking qualifier.
func IsThinkingModel(modelName string) bool {
	if strings.HasPrefix(modelName, extendedThinkingQualifier) {
		return true
	}
	for _, prefix := range reasoningPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			return true
		}
	}
	return false
}

// RequiresTemperatureOne reports whether modelName belongs to a family that
// requires temperature = 1.0.
func RequiresTemperatureOne(modelName string) bool {
	for _, prefix := range temperatureRequiresOne {
		if strings.HasPrefix(modelName, prefix) {
			return true
		}
	}
	return false
}

// ResolveTemperature applies SPEC_FULL.md §4.2's provider-aware defaults: a
// thinking model omits temperature entirely; a temperature-locked family
// uses 1.0; otherwise 0 unless explicitly overridden.
func ResolveTemperature(modelName string, override *float64) *float64 {
	if IsThinkingModel(modelName) {
		return nil
	}
	if override != nil {
		return override
	}
	if RequiresTemperatureOne(modelName) {
		one := 1.0
		return &one
	}
	zero := 0.0
	return &zero
}

// BuildLoadConfig resolves the full ModelLoadConfig for (provider, task).
func BuildLoadConfig(provider Provider, task LLMTask, run RunConfig, maxTokens int, tempOverride *float64) ModelLoadConfig {
	name := ResolveModelName(provider, task, run)
	cfg := ModelLoadConfig{Provider: provider, ModelName: name, MaxTokens: maxTokens}
	if IsThinkingModel(name) {
		cfg.ThinkingModel = true
		cfg.ThinkingBudgetTokens = defaultThinkingBudget
		cfg.MaxTokens = defaultThinkingBudget * 4
		cfg.Temperature = nil
		return cfg
	}
	cfg.Temperature = ResolveTemperature(name, tempOverride)
	return cfg
}

// envInt reads an environment variable as an int, ignoring parse errors.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
