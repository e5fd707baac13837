package graph

import (
	"context"

	"github.com/open-swe/agent-engine/internal/sandbox"
	"gopkg.in/yaml.v3"
)

// repoConfigPath is the optional per-repo override file, analogous to the
// .openswe/rules.md custom-instructions file but for commit-time behavior
// rather than model instructions.
const repoConfigPath = ".openswe/config.yaml"

// repoConfig is the subset of commit-time behavior a target repo may
// override for itself, layered under the operator-wide defaults.
type repoConfig struct {
	ExcludePrefixes []string `yaml:"excludePrefixes"`
	SkipCI          bool     `yaml:"skipCi"`
}

// loadRepoConfig reads and parses repoConfigPath from box, if present. A
// missing file or invalid YAML is not fatal: the repo simply gets no
// overrides, matching the best-effort convention used for .skills/ and
// .openswe/rules.md elsewhere in this phase.
func loadRepoConfig(ctx context.Context, box sandbox.Sandbox) repoConfig {
	raw, err := box.ReadFile(ctx, repoConfigPath)
	if err != nil || len(raw) == 0 {
		return repoConfig{}
	}
	var cfg repoConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return repoConfig{}
	}
	return cfg
}
