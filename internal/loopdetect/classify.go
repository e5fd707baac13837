package loopdetect

import (
	"strings"

	"github.com/open-swe/agent-engine/internal/message"
)

// ClassificationType names the behavioral category detect() assigns.
type ClassificationType string

const (
	None         ClassificationType = "none"
	Verification ClassificationType = "verification"
	ErrorRetry   ClassificationType = "error_retry"
	Alternating  ClassificationType = "alternating"
	ReadOnly     ClassificationType = "read_only"
	SimilarCalls ClassificationType = "similar_calls"
	Frequency    ClassificationType = "frequency"
	Chanting     ClassificationType = "chanting"
	EditLoop     ClassificationType = "edit_loop"
)

// Recommendation is the escalation action the caller should take.
type Recommendation string

const (
	Continue     Recommendation = "continue"
	Warn         Recommendation = "warn"
	RequestHelp  Recommendation = "request_help"
	ForceComplete Recommendation = "force_complete"
)

var readOnlyTools = map[string]bool{"file-view": true, "grep": true, "search": true, "url-fetch": true}
var readOnlyShellVerbs = map[string]bool{"cat": true, "ls": true, "head": true, "tail": true, "grep": true, "find": true, "tree": true, "pwd": true, "echo": true, "wc": true}
var writeTools = map[string]bool{"patch-apply": true, "str-replace": true, "install-deps": true}
var writeShellVerbs = map[string]bool{"npm": true, "yarn": true, "pnpm": true, "mkdir": true, "touch": true, "rm": true, "mv": true, "cp": true, "git": true}
var editTools = map[string]bool{"patch-apply": true, "str-replace": true}
var buildVerbs = map[string]bool{"build": true, "test": true, "lint": true, "check": true, "compile": true}

const windowSize = 120

// Round is one AI message's tool calls treated as a set, plus whether any
// of its matching results were classified as errors.
type Round struct {
	Calls       []message.ToolCall
	ResultsHash []uint64
	AnyError    bool
}

// IsReadOnly reports whether every call in the round is a read-only tool.
func (r Round) IsReadOnly() bool {
	for _, c := range r.Calls {
		if !isReadOnly(c) {
			return false
		}
	}
	return len(r.Calls) > 0
}

// IsWrite reports whether any call in the round is a write tool.
func (r Round) IsWrite() bool {
	for _, c := range r.Calls {
		if isWrite(c) {
			return true
		}
	}
	return false
}

func isReadOnly(tc message.ToolCall) bool {
	if readOnlyTools[tc.Name] {
		return true
	}
	if tc.Name == "shell" {
		return shellVerbIn(tc, readOnlyShellVerbs)
	}
	return false
}

func isWrite(tc message.ToolCall) bool {
	if writeTools[tc.Name] {
		return true
	}
	if tc.Name == "shell" {
		return shellVerbIn(tc, writeShellVerbs)
	}
	return false
}

func shellVerbIn(tc message.ToolCall, set map[string]bool) bool {
	cmd, _ := tc.Args["command"].(string)
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	return set[fields[0]]
}

// targetFile extracts a canonical target path from a tool call's arguments,
// preferring a "path"/"file" argument and falling back to the last
// whitespace-delimited token of a shell command that has more than one token.
func targetFile(tc message.ToolCall) string {
	for _, key := range []string{"path", "file", "file_path", "target"} {
		if v, ok := tc.Args[key].(string); ok && v != "" {
			return v
		}
	}
	if tc.Name == "shell" {
		cmd, _ := tc.Args["command"].(string)
		fields := strings.Fields(cmd)
		if len(fields) > 1 {
			return fields[len(fields)-1]
		}
	}
	return ""
}

func isBuildVerb(tc message.ToolCall) bool {
	if tc.Name != "shell" {
		return false
	}
	cmd, _ := tc.Args["command"].(string)
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	return buildVerbs[fields[0]]
}
