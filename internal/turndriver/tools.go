// Package turndriver implements the Agent Turn Driver (C5): the 11-step
// pipeline producing the next AI message given current thread state and
// run config, per SPEC_FULL.md §4.5. Grounded on
// runtime/agent/runtime/agent_tools.go's shared-tool-set-plus-provider-variant
// composition and runtime/agent/runtime/tool_calls.go's post-processing of
// the model's returned tool calls.
package turndriver

import "github.com/open-swe/agent-engine/internal/llmgateway"

// ProviderFamily names one of the three message/tool shapes C5 builds.
type ProviderFamily string

const (
	FamilyAnthropic ProviderFamily = "anthropic"
	FamilyOpenAI    ProviderFamily = "openai"
	FamilyBedrock   ProviderFamily = "bedrock"
)

// sharedToolNames are present regardless of provider family.
var sharedToolNames = []string{
	"grep",
	"file-view",
	"shell",
	"request_human_help",
	"update_plan",
	"url-fetch",
	"install-deps",
	"mark_task_completed",
	"search-document",
	"write-tsconfig",
}

// BuildSharedTools returns the shared tool set plus any MCP-provided and
// optional code-review-reply tools.
func BuildSharedTools(mcpTools []llmgateway.ToolSpec, includeReviewReply bool) []llmgateway.ToolSpec {
	specs := make([]llmgateway.ToolSpec, 0, len(sharedToolNames)+len(mcpTools)+1)
	for _, name := range sharedToolNames {
		specs = append(specs, toolSpecFor(name))
	}
	if includeReviewReply {
		specs = append(specs, toolSpecFor("review-reply"))
	}
	specs = append(specs, mcpTools...)
	return specs
}

// BuildEditTool returns the per-provider edit-tool variant: the text-editor
// tool family for the reasoning provider (Anthropic), apply-patch for
// others.
func BuildEditTool(family ProviderFamily) llmgateway.ToolSpec {
	if family == FamilyAnthropic {
		return toolSpecFor("str_replace_based_edit_tool")
	}
	return toolSpecFor("apply_patch")
}

// BuildTools composes the shared set with the per-provider edit tool for
// each of the three families (SPEC_FULL.md §4.5 step 6).
func BuildTools(mcpTools []llmgateway.ToolSpec, includeReviewReply bool) map[ProviderFamily][]llmgateway.ToolSpec {
	shared := BuildSharedTools(mcpTools, includeReviewReply)
	out := map[ProviderFamily][]llmgateway.ToolSpec{}
	for _, family := range []ProviderFamily{FamilyAnthropic, FamilyOpenAI, FamilyBedrock} {
		specs := make([]llmgateway.ToolSpec, 0, len(shared)+1)
		specs = append(specs, shared...)
		specs = append(specs, BuildEditTool(family))
		out[family] = specs
	}
	return out
}

// toolSpecFor returns the canonical ToolSpec for a well-known tool name.
// Schemas are intentionally minimal placeholders; concrete argument shapes
// live alongside each tool's sandbox-side implementation.
func toolSpecFor(name string) llmgateway.ToolSpec {
	return llmgateway.ToolSpec{
		Name:        name,
		Description: toolDescriptions[name],
		Schema:      map[string]any{"type": "object"},
	}
}

var toolDescriptions = map[string]string{
	"grep":                 "Search file contents by regex within the sandbox working tree.",
	"file-view":            "Read a file or directory listing from the sandbox.",
	"shell":                "Run a shell command in the sandbox and capture stdout/stderr/exit code.",
	"request_human_help":   "Pause the run and ask a human for guidance.",
	"update_plan":          "Append a new plan revision to the active task.",
	"url-fetch":            "Fetch a URL's contents for reference.",
	"install-deps":         "Install project dependencies using the detected package manager.",
	"mark_task_completed":  "Mark the active task complete and summarize the outcome.",
	"search-document":      "Search within a long document or codebase tree rendering.",
	"write-tsconfig":       "Write or update a tsconfig.json file.",
	"review-reply":         "Reply to a specific review comment thread.",
	"str_replace_based_edit_tool": "View and edit files via string replacement operations.",
	"apply_patch":          "Apply a unified diff patch to one or more files.",
}
