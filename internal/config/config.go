// Package config loads the engine's environment-driven configuration,
// grounded on hugo-lorenzo-mato-quorum-ai's spf13/viper usage — the one
// example repo in this pack with a central env-driven config loader
// (the teacher has no equivalent single entrypoint; see DESIGN.md).
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// SandboxProvider selects the C1 backend.
type SandboxProvider string

const (
	SandboxProviderA     SandboxProvider = "provider_a"
	SandboxProviderB     SandboxProvider = "provider_b"
	SandboxProviderMulti SandboxProvider = "multi"
	SandboxProviderLocal SandboxProvider = "local"
)

// Config is the process-wide configuration assembled from environment
// variables named in SPEC_FULL.md §6.
type Config struct {
	SandboxProvider SandboxProvider `mapstructure:"sandbox_provider"`

	ProviderAAPIKeys []string `mapstructure:"-"`
	ProviderBAPIKeys []string `mapstructure:"-"`

	LLMProvider              string `mapstructure:"llm_provider"`
	LLMMultiProviderEnabled  bool   `mapstructure:"llm_multi_provider_enabled"`
	CodebaseTreeExcludePaths []string `mapstructure:"-"`
	CodebaseTreeSkipFiles    bool     `mapstructure:"codebase_tree_skip_files"`
	SkipCIUntilLastCommit    bool     `mapstructure:"skip_ci_until_last_commit"`

	GitHubAppID         string `mapstructure:"github_app_id"`
	GitHubAppPrivateKey string `mapstructure:"github_app_private_key"`
	GitHubWebhookSecret string `mapstructure:"github_webhook_secret"`
	GitHubAppName       string `mapstructure:"github_app_name"`

	// ModelOverrides holds {PROVIDER}_{TASK}_MODEL overrides, keyed
	// "PROVIDER_TASK" upper-case, per the C2 resolution order.
	ModelOverrides map[string]string `mapstructure:"-"`
}

// Load reads environment variables (prefix-free, matching the literal names
// in SPEC_FULL.md §6) into a Config.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("sandbox_provider", string(SandboxProviderLocal))
	v.SetDefault("llm_multi_provider_enabled", false)
	v.SetDefault("codebase_tree_skip_files", false)
	v.SetDefault("skip_ci_until_last_commit", false)

	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)

	cfg := &Config{
		SandboxProvider:         SandboxProvider(v.GetString("SANDBOX_PROVIDER")),
		LLMProvider:             v.GetString("LLM_PROVIDER"),
		LLMMultiProviderEnabled: v.GetBool("LLM_MULTI_PROVIDER_ENABLED"),
		CodebaseTreeSkipFiles:   v.GetBool("CODEBASE_TREE_SKIP_FILES"),
		SkipCIUntilLastCommit:   v.GetBool("SKIP_CI_UNTIL_LAST_COMMIT"),
		GitHubAppID:             v.GetString("GITHUB_APP_ID"),
		GitHubAppPrivateKey:     v.GetString("GITHUB_APP_PRIVATE_KEY"),
		GitHubWebhookSecret:     v.GetString("GITHUB_WEBHOOK_SECRET"),
		GitHubAppName:           v.GetString("GITHUB_APP_NAME"),
		ModelOverrides:          map[string]string{},
	}
	if s := v.GetString("PROVIDER_A_API_KEY"); s != "" {
		cfg.ProviderAAPIKeys = splitCSV(s)
	}
	if s := v.GetString("PROVIDER_B_API_KEY"); s != "" {
		cfg.ProviderBAPIKeys = splitCSV(s)
	}
	if s := v.GetString("CODEBASE_TREE_EXCLUDE_PATHS"); s != "" {
		cfg.CodebaseTreeExcludePaths = splitCSV(s)
	}
	return cfg, nil
}

// ModelOverride resolves a {PROVIDER}_{TASK}_MODEL override, step (2) of the
// C2 resolution order in SPEC_FULL.md §4.2.
func ModelOverride(provider, task string) string {
	key := strings.ToUpper(provider) + "_" + strings.ToUpper(task) + "_MODEL"
	return strings.TrimSpace(viperEnv(key))
}

func viperEnv(key string) string {
	v := viper.New()
	v.AutomaticEnv()
	return v.GetString(key)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
