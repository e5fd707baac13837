package turndriver

import (
	"github.com/open-swe/agent-engine/internal/message"
	"github.com/open-swe/agent-engine/internal/plan"
)

// SystemSections composes the static, dynamic, and optional code-review
// segments that prefix every provider's message array.
type SystemSections struct {
	Static       string
	Dynamic      string
	ReviewContext string // empty when not in a review turn
}

// Render concatenates the non-empty sections with blank-line separators.
func (s SystemSections) Render() string {
	out := s.Static
	if s.Dynamic != "" {
		out += "\n\n" + s.Dynamic
	}
	if s.ReviewContext != "" {
		out += "\n\n" + s.ReviewContext
	}
	return out
}

// BuildMessages assembles the provider-neutral request messages: a system
// message (the same plain message for every family; no cache-control
// markers are attached), the turn history, and a trailing human message embedding the active plan
// text and the loop warning, if any (SPEC_FULL.md §4.5 step 7). For
// FamilyAnthropic the strict-ordering fix-up (step 8) is applied.
func BuildMessages(family ProviderFamily, sections SystemSections, history []message.Message, activePlan *plan.TaskPlan, loopWarning string) []message.Message {
	out := make([]message.Message, 0, len(history)+2)
	out = append(out, message.System(sections.Render()))
	out = append(out, history...)

	trailing := ""
	if activePlan != nil {
		trailing += activePlan.Text()
	}
	if loopWarning != "" {
		if trailing != "" {
			trailing += "\n\n"
		}
		trailing += loopWarning
	}
	if trailing != "" {
		out = append(out, message.Human(trailing))
	}

	if family == FamilyAnthropic {
		return applyStrictOrdering(out)
	}
	return out
}

// applyStrictOrdering merges consecutive tool results, strips a trailing
// AI-with-tool-calls message, and inserts a synthetic "continue" human
// message when the sequence (after the system message) begins with one —
// the fix-up required for the Gemini-strict-ordering provider variant
// (SPEC_FULL.md §4.5 step 8, §3 Gemini-strict invariant).
func applyStrictOrdering(msgs []message.Message) []message.Message {
	if len(msgs) == 0 {
		return msgs
	}
	sys := msgs[0]
	rest := message.MergeConsecutiveToolResults(msgs[1:])
	rest = message.StripTrailingToolCallMessage(rest)
	return append([]message.Message{sys}, rest...)
}
