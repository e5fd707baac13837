// Package loopdetect implements the Loop Detector (C4): classifying the
// last ~120 messages into a behavioral category and recommending an
// escalation action, per SPEC_FULL.md §4.4. Canonical-JSON signature
// hashing is grounded on the teacher's deterministic-encoding convention in
// runtime/agent/planner/json_marshal.go; xxhash for output-repetition
// detection is carried from the teacher's go.mod (cespare/xxhash/v2).
package loopdetect

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/open-swe/agent-engine/internal/message"
)

// Signature identifies a tool call by name and canonicalized arguments.
type Signature struct {
	ToolName string
	Args     string // canonical JSON
}

// CanonicalArgs marshals args with sorted map keys so structurally
// identical calls produce byte-identical signatures regardless of
// construction order.
func CanonicalArgs(args map[string]any) string {
	data, err := json.Marshal(sortedAny(args))
	if err != nil {
		return ""
	}
	return string(data)
}

// sortedAny rebuilds m into an ordered slice of key/value pairs so
// json.Marshal output is deterministic, since Go map iteration order is
// randomized but json.Marshal on map[string]any already sorts keys -
// nested maps need the same treatment recursively.
func sortedAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(val))
		for _, k := range keys {
			out = append(out, orderedPair{Key: k, Value: sortedAny(val[k])})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortedAny(e)
		}
		return out
	default:
		return val
	}
}

type orderedPair struct {
	Key   string
	Value any
}
type orderedMap []orderedPair

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, p := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, _ := json.Marshal(p.Key)
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// SignatureOf builds a Signature from a tool call.
func SignatureOf(tc message.ToolCall) Signature {
	return Signature{ToolName: tc.Name, Args: CanonicalArgs(tc.Args)}
}

// OutputHash returns a small integer hash over tool result content, used to
// decide whether an apparent repetition carries distinct output.
func OutputHash(content string) uint64 {
	return xxhash.Sum64String(content)
}

// hashKey renders an OutputHash for use as a map key/string, e.g. in test
// fixtures.
func hashKey(h uint64) string {
	return strconv.FormatUint(h, 16)
}
