package loopdetect

import (
	"fmt"
	"strings"

	"github.com/open-swe/agent-engine/internal/message"
)

const warningMarker = "[[loop-warning]]"

// Thresholds collects the configurable detector thresholds from
// SPEC_FULL.md §4.4; DefaultThresholds returns the spec defaults.
type Thresholds struct {
	GenericLoopRounds       int
	ReadOnlyWindowRounds    int
	ReadOnlyWindowPct       float64
	ReadOnlyMaxTargets      int
	SimilarCallsThreshold   int
	SimilarCallsReadOnly    int
	EditLoopThreshold       int
	EditLoopToolSwitch      int
	FrequencyWindowRounds   int
	FrequencyThreshold      int
	FrequencyUniqueShell    int
	ChantingRounds          int
	ChantingJaccard         float64
	ErrorRetryWindow        int
	ErrorRetryPct           float64
	WarningEscalationCount  int
	ForceMargin             int
	ReadOnlyForceMargin     int
	SimilarCallsForceMargin int
	FrequencyForceMargin    int
}

// DefaultThresholds returns the default configuration from SPEC_FULL.md §4.4.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GenericLoopRounds:       20,
		ReadOnlyWindowRounds:    10,
		ReadOnlyWindowPct:       0.85,
		ReadOnlyMaxTargets:      2,
		SimilarCallsThreshold:   24,
		SimilarCallsReadOnly:    40,
		EditLoopThreshold:       20,
		EditLoopToolSwitch:      3,
		FrequencyWindowRounds:   80,
		FrequencyThreshold:      48,
		FrequencyUniqueShell:    16,
		ChantingRounds:          12,
		ChantingJaccard:         0.9,
		ErrorRetryWindow:        20,
		ErrorRetryPct:           0.6,
		WarningEscalationCount:  12,
		ForceMargin:             10,
		ReadOnlyForceMargin:     10,
		SimilarCallsForceMargin: 10,
		FrequencyForceMargin:    10,
	}
}

// Result is the outcome of Detect: a classification plus the counters
// needed for escalation and for building a warning/force-completion message.
type Result struct {
	Type           ClassificationType
	Recommendation Recommendation
	Count          int
	TargetFile     string
	HelpAlreadyRequested bool
}

// Detect analyses the last window messages (most-recent-first is not
// assumed; msgs is chronological) and returns the classification and
// recommended action. Detect is a pure function of msgs: Detect(m) always
// equals Detect(m) for the same input.
func Detect(msgs []message.Message, th Thresholds) Result {
	window := lastN(msgs, windowSize)
	rounds := extractRounds(window)

	if t, tgt, n := detectEditLoop(rounds, th); t {
		return finalize(EditLoop, n, tgt, window, th)
	}
	if n, ok := detectChanting(window, th); ok {
		return finalize(Chanting, n, "", window, th)
	}
	if isLegitimateBuildFixRetry(rounds, th) {
		return Result{Type: None, Recommendation: Continue}
	}
	if hasExploration(rounds) {
		return Result{Type: None, Recommendation: Continue}
	}
	if n, ok := detectErrorRetry(rounds, th); ok {
		return finalize(ErrorRetry, n, "", window, th)
	}
	if n, ok := detectAlternating(rounds, th); ok {
		return finalizeAlternating(n, window, th)
	}
	if n, ok := detectReadOnlyLoop(rounds, th); ok {
		return finalize(ReadOnly, n, "", window, th)
	}
	if n, tgt, ok := detectSimilarCalls(rounds, th); ok {
		return finalize(SimilarCalls, n, tgt, window, th)
	}
	if n, ok := detectFrequency(rounds, th); ok {
		return finalize(Frequency, n, "", window, th)
	}
	if n, varies, ok := detectGenericLoop(rounds, th); ok {
		eff := n
		if varies {
			eff -= 2
		}
		return finalize(Verification, eff, "", window, th)
	}
	return Result{Type: None, Recommendation: Continue}
}

func lastN(msgs []message.Message, n int) []message.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func extractRounds(msgs []message.Message) []Round {
	var rounds []Round
	for i, m := range msgs {
		if !m.HasToolCalls() {
			continue
		}
		r := Round{Calls: m.ToolCalls}
		for j := i + 1; j < len(msgs) && msgs[j].Kind == message.KindToolResult; j++ {
			r.ResultsHash = append(r.ResultsHash, OutputHash(msgs[j].Content))
			if msgs[j].IsError {
				r.AnyError = true
			}
		}
		rounds = append(rounds, r)
	}
	return rounds
}

// detectGenericLoop: ≥ threshold consecutive identical rounds (same
// signature set); reports whether the outputs varied across that run.
func detectGenericLoop(rounds []Round, th Thresholds) (count int, varies bool, ok bool) {
	if len(rounds) == 0 {
		return 0, false, false
	}
	last := roundKey(rounds[len(rounds)-1])
	n := 0
	hashes := map[uint64]bool{}
	for i := len(rounds) - 1; i >= 0; i-- {
		if roundKey(rounds[i]) != last {
			break
		}
		n++
		for _, h := range rounds[i].ResultsHash {
			hashes[h] = true
		}
	}
	if n >= th.GenericLoopRounds {
		return n, len(hashes) > 1, true
	}
	return n, false, false
}

func roundKey(r Round) string {
	sigs := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		sigs[i] = SignatureOf(c).ToolName + "|" + SignatureOf(c).Args
	}
	return strings.Join(sigs, ";")
}

// detectReadOnlyLoop: within the last ReadOnlyWindowRounds rounds, >= pct
// read-only AND no writes AND <= maxTargets unique target files. Count is
// extended backward past the trigger window to the full run length so that
// recommend can escalate to force_complete once the loop persists beyond
// ReadOnlyWindowRounds+ReadOnlyForceMargin, rather than reporting a count
// pinned at the window size forever.
func detectReadOnlyLoop(rounds []Round, th Thresholds) (int, bool) {
	window := lastNRounds(rounds, th.ReadOnlyWindowRounds)
	if len(window) < th.ReadOnlyWindowRounds {
		return 0, false
	}
	readOnlyCount := 0
	targets := map[string]bool{}
	for _, r := range window {
		if r.IsWrite() {
			return 0, false
		}
		if r.IsReadOnly() {
			readOnlyCount++
		}
		for _, c := range r.Calls {
			if t := targetFile(c); t != "" {
				targets[t] = true
			}
		}
	}
	pct := float64(readOnlyCount) / float64(len(window))
	if pct < th.ReadOnlyWindowPct || len(targets) > th.ReadOnlyMaxTargets {
		return 0, false
	}
	n := len(window)
	for i := len(rounds) - len(window) - 1; i >= 0; i-- {
		if rounds[i].IsWrite() {
			break
		}
		extended := map[string]bool{}
		for t := range targets {
			extended[t] = true
		}
		for _, c := range rounds[i].Calls {
			if t := targetFile(c); t != "" {
				extended[t] = true
			}
		}
		if len(extended) > th.ReadOnlyMaxTargets {
			break
		}
		targets = extended
		n++
	}
	return n, true
}

func lastNRounds(rounds []Round, n int) []Round {
	if len(rounds) <= n {
		return rounds
	}
	return rounds[len(rounds)-n:]
}

// detectSimilarCalls: >= threshold consecutive calls targeting the same
// file (threshold raised if all read-only).
func detectSimilarCalls(rounds []Round, th Thresholds) (int, string, bool) {
	if len(rounds) == 0 {
		return 0, "", false
	}
	last := lastTarget(rounds[len(rounds)-1])
	if last == "" {
		return 0, "", false
	}
	n := 0
	allReadOnly := true
	for i := len(rounds) - 1; i >= 0; i-- {
		if lastTarget(rounds[i]) != last {
			break
		}
		n++
		if !rounds[i].IsReadOnly() {
			allReadOnly = false
		}
	}
	threshold := th.SimilarCallsThreshold
	if allReadOnly {
		threshold = th.SimilarCallsReadOnly
	}
	if n >= threshold {
		return n, last, true
	}
	return 0, "", false
}

func lastTarget(r Round) string {
	for i := len(r.Calls) - 1; i >= 0; i-- {
		if t := targetFile(r.Calls[i]); t != "" {
			return t
		}
	}
	return ""
}

// detectEditLoop implements the three edit_loop conditions from
// SPEC_FULL.md §4.4.
func detectEditLoop(rounds []Round, th Thresholds) (bool, string, int) {
	// Condition 1: >= threshold consecutive failed edit-tool calls on the
	// same file.
	if len(rounds) > 0 {
		last := lastTarget(rounds[len(rounds)-1])
		if last != "" {
			n := 0
			for i := len(rounds) - 1; i >= 0; i-- {
				r := rounds[i]
				if lastTarget(r) != last || !isEditRound(r) || !r.AnyError {
					break
				}
				n++
			}
			if n >= th.EditLoopThreshold {
				return true, last, n
			}
		}
	}
	// Condition 2: tool-switching (str-replace failing then patch-apply
	// failing) on the same file >= EditLoopToolSwitch times.
	if n, tgt, ok := detectToolSwitching(rounds, th); ok {
		return true, tgt, n
	}
	// Condition 3: read->edit(fail)->read->edit(fail) cycle, >=2 reads and
	// >=2 edit failures on one file.
	if tgt, reads, fails := detectReadEditCycle(rounds); reads >= 2 && fails >= 2 {
		return true, tgt, reads + fails
	}
	return false, "", 0
}

func isEditRound(r Round) bool {
	for _, c := range r.Calls {
		if editTools[c.Name] {
			return true
		}
	}
	return false
}

func detectToolSwitching(rounds []Round, th Thresholds) (int, string, bool) {
	byTarget := map[string][]string{}
	for _, r := range rounds {
		if !isEditRound(r) || !r.AnyError {
			continue
		}
		tgt := lastTarget(r)
		if tgt == "" {
			continue
		}
		for _, c := range r.Calls {
			if editTools[c.Name] {
				byTarget[tgt] = append(byTarget[tgt], c.Name)
			}
		}
	}
	for tgt, seq := range byTarget {
		switches := 0
		for i := 1; i < len(seq); i++ {
			if seq[i] != seq[i-1] {
				switches++
			}
		}
		if switches >= th.EditLoopToolSwitch {
			return switches, tgt, true
		}
	}
	return 0, "", false
}

func detectReadEditCycle(rounds []Round) (string, int, int) {
	counts := map[string][2]int{} // target -> (reads, failedEdits)
	for _, r := range rounds {
		for _, c := range r.Calls {
			tgt := targetFile(c)
			if tgt == "" {
				continue
			}
			pair := counts[tgt]
			if isReadOnly(c) {
				pair[0]++
			} else if editTools[c.Name] && r.AnyError {
				pair[1]++
			}
			counts[tgt] = pair
		}
	}
	bestTgt := ""
	bestReads, bestFails := 0, 0
	for tgt, pair := range counts {
		if pair[0] >= 2 && pair[1] >= 2 && pair[0]+pair[1] > bestReads+bestFails {
			bestTgt, bestReads, bestFails = tgt, pair[0], pair[1]
		}
	}
	return bestTgt, bestReads, bestFails
}

// detectFrequency: within a window of rounds, >= threshold calls of the
// same normalised tool key, with a build-diversity escape hatch.
func detectFrequency(rounds []Round, th Thresholds) (int, bool) {
	window := lastNRounds(rounds, th.FrequencyWindowRounds)
	if len(window) == 0 {
		return 0, false
	}
	counts := map[string]int{}
	shellCommands := map[string]bool{}
	shellCalls := 0
	for _, r := range window {
		for _, c := range r.Calls {
			key := c.Name
			if c.Name == "shell" {
				if cmd, ok := c.Args["command"].(string); ok {
					shellCommands[cmd] = true
					shellCalls++
				}
			}
			counts[key]++
		}
	}
	if len(shellCommands) >= th.FrequencyUniqueShell {
		// Still trigger if one identical command dominates.
		maxSame := 0
		for cmd := range shellCommands {
			n := 0
			for _, r := range window {
				for _, c := range r.Calls {
					if v, _ := c.Args["command"].(string); c.Name == "shell" && v == cmd {
						n++
					}
				}
			}
			if n > maxSame {
				maxSame = n
			}
		}
		if maxSame >= th.FrequencyThreshold && shellCalls > 0 && float64(maxSame)/float64(shellCalls) > 0.6 {
			return maxSame, true
		}
		return 0, false
	}
	for _, n := range counts {
		if n >= th.FrequencyThreshold {
			return n, true
		}
	}
	return 0, false
}

// detectChanting: >= ChantingRounds consecutive AI messages whose Jaccard
// word-similarity >= ChantingJaccard.
func detectChanting(msgs []message.Message, th Thresholds) (int, bool) {
	var aiTexts []string
	for _, m := range msgs {
		if m.Kind == message.KindAI && strings.TrimSpace(m.Content) != "" {
			aiTexts = append(aiTexts, m.Content)
		}
	}
	if len(aiTexts) < th.ChantingRounds {
		return 0, false
	}
	n := 1
	for i := len(aiTexts) - 1; i > 0; i-- {
		if jaccard(aiTexts[i], aiTexts[i-1]) >= th.ChantingJaccard {
			n++
		} else {
			break
		}
	}
	if n >= th.ChantingRounds {
		return n, true
	}
	return 0, false
}

func jaccard(a, b string) float64 {
	sa := wordSet(a)
	sb := wordSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter, union := 0, len(sa)
	for w := range sb {
		if sa[w] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

// detectErrorRetry: within the last ErrorRetryWindow tool results, >= pct
// classified as errors.
func detectErrorRetry(rounds []Round, th Thresholds) (int, bool) {
	var results []bool
	for _, r := range rounds {
		for range r.ResultsHash {
			results = append(results, r.AnyError)
		}
	}
	window := results
	if len(window) > th.ErrorRetryWindow {
		window = window[len(window)-th.ErrorRetryWindow:]
	}
	if len(window) < th.ErrorRetryWindow {
		return 0, false
	}
	errs := 0
	for _, e := range window {
		if e {
			errs++
		}
	}
	if float64(errs)/float64(len(window)) >= th.ErrorRetryPct {
		return errs, true
	}
	return 0, false
}

// detectAlternating finds 2/3/4/6-element oscillation patterns and returns
// the pattern length observed.
func detectAlternating(rounds []Round, th Thresholds) (int, bool) {
	keys := make([]string, len(rounds))
	for i, r := range rounds {
		keys[i] = roundKey(r)
	}
	for _, period := range []int{2, 3, 4, 6} {
		if n := longestPeriodicSuffix(keys, period); n >= period*3 && hasDistinctValues(keys, n, period) {
			return period, true
		}
	}
	return 0, false
}

// hasDistinctValues reports whether the trailing n keys contain at least 2
// distinct values within one period-length cycle, distinguishing true
// oscillation (A,B,A,B) from degenerate repetition of a single value
// (already covered by the generic-loop detector).
func hasDistinctValues(keys []string, n, period int) bool {
	if n > len(keys) {
		n = len(keys)
	}
	start := len(keys) - n
	seen := map[string]bool{}
	for i := start; i < start+period && i < len(keys); i++ {
		seen[keys[i]] = true
	}
	return len(seen) >= 2
}

func longestPeriodicSuffix(keys []string, period int) int {
	n := 0
	for i := len(keys) - 1; i-period >= 0; i-- {
		if keys[i] != keys[i-period] {
			break
		}
		n++
	}
	if n > 0 {
		return n + period
	}
	return 0
}

func isLegitimateBuildFixRetry(rounds []Round, th Thresholds) bool {
	if len(rounds) < 4 {
		return false
	}
	hasBuild, hasEdit := false, false
	var editTargets []string
	for _, r := range rounds {
		for _, c := range r.Calls {
			if isBuildVerb(c) {
				hasBuild = true
			}
			if editTools[c.Name] {
				hasEdit = true
				if v, ok := c.Args["new_content"].(string); ok {
					editTargets = append(editTargets, v)
				}
			}
		}
	}
	if !hasBuild || !hasEdit {
		return false
	}
	return !pairwiseHighlySimilar(editTargets)
}

func pairwiseHighlySimilar(edits []string) bool {
	similarPairs, total := 0, 0
	for i := 0; i < len(edits); i++ {
		for j := i + 1; j < len(edits); j++ {
			total++
			if jaccard(edits[i], edits[j]) >= 0.8 {
				similarPairs++
			}
		}
	}
	if total == 0 {
		return false
	}
	return float64(similarPairs)/float64(total) >= 0.8
}

func hasExploration(rounds []Round) bool {
	targets := map[string]bool{}
	for _, r := range rounds {
		if !r.IsReadOnly() {
			continue
		}
		for _, c := range r.Calls {
			if t := targetFile(c); t != "" {
				targets[t] = true
			}
		}
	}
	return len(targets) >= 5
}

// countWarnings scans recent human messages for an injected warning marker.
func countWarnings(msgs []message.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Kind == message.KindHuman && strings.Contains(m.Content, warningMarker) {
			n++
		}
	}
	return n
}

// helpAlreadyRequested checks whether a request_human_help tool call
// appears in the last 10 messages.
func helpAlreadyRequested(msgs []message.Message) bool {
	window := lastN(msgs, 10)
	for _, m := range window {
		for _, c := range m.ToolCalls {
			if c.Name == "request_human_help" {
				return true
			}
		}
	}
	return false
}

func finalize(t ClassificationType, count int, target string, window []message.Message, th Thresholds) Result {
	res := Result{Type: t, Count: count, TargetFile: target, HelpAlreadyRequested: helpAlreadyRequested(window)}
	res.Recommendation = recommend(res, window, th)
	return res
}

func finalizeAlternating(patternLength int, window []message.Message, th Thresholds) Result {
	res := Result{Type: Alternating, Count: patternLength, HelpAlreadyRequested: helpAlreadyRequested(window)}
	if patternLength >= 6 {
		res.Recommendation = ForceComplete
	} else {
		res.Recommendation = Warn
	}
	return res
}

func recommend(res Result, window []message.Message, th Thresholds) Recommendation {
	if countWarnings(window) >= th.WarningEscalationCount {
		if res.HelpAlreadyRequested {
			return ForceComplete
		}
		return RequestHelp
	}
	switch res.Type {
	case Chanting:
		return ForceComplete
	case EditLoop:
		if res.HelpAlreadyRequested {
			return ForceComplete
		}
		return RequestHelp
	case ErrorRetry:
		if res.HelpAlreadyRequested {
			return ForceComplete
		}
		return RequestHelp
	case ReadOnly:
		// detectReadOnlyLoop's Count runs from ReadOnlyWindowRounds upward as
		// the loop persists; ForceMargin is its own, since the window size
		// (10) is far smaller than the generic loop's (20).
		return thresholdRecommendation(res.Count, th.ReadOnlyWindowRounds, th.ReadOnlyForceMargin)
	case SimilarCalls:
		// detectSimilarCalls fires at SimilarCallsThreshold, or at the
		// higher SimilarCallsReadOnly bar when every call in the run was
		// read-only; reconstruct which bar fired from the reported Count so
		// warn still precedes force_complete instead of jumping straight to
		// it, per spec.md:117.
		threshold := th.SimilarCallsThreshold
		if res.Count >= th.SimilarCallsReadOnly {
			threshold = th.SimilarCallsReadOnly
		}
		return thresholdRecommendation(res.Count, threshold, th.SimilarCallsForceMargin)
	case Frequency:
		return thresholdRecommendation(res.Count, th.FrequencyThreshold, th.FrequencyForceMargin)
	default:
		return thresholdRecommendation(res.Count, th.GenericLoopRounds, th.ForceMargin)
	}
}

// thresholdRecommendation is the shared warn-then-force_complete rule for
// "other" classifications (spec.md:117): warn once count reaches threshold,
// escalate to force_complete once it reaches threshold+margin.
func thresholdRecommendation(count, threshold, margin int) Recommendation {
	if count >= threshold+margin {
		return ForceComplete
	}
	return Warn
}

// WarningPrompt builds a warning string tailored to res.Type, to inject
// into the next human turn.
func WarningPrompt(res Result) string {
	base := warningMarker + " "
	switch res.Type {
	case ReadOnly:
		return base + "You have repeated read-only inspection of the same file(s) without making progress. Take a concrete action or explain the blocker."
	case SimilarCalls:
		return base + fmt.Sprintf("You have called the same tool on %q %d times in a row. Reconsider your approach.", res.TargetFile, res.Count)
	case Frequency:
		return base + "You are repeating the same tool very frequently. Slow down and reassess the plan."
	case Verification:
		return base + "You appear to be repeating the same action without new information. Try a different approach."
	default:
		return base + "Your recent actions look repetitive. Consider a different strategy or ask for help."
	}
}

// ToolResultCount reports the total number of tool results across rounds,
// useful for tests asserting on extractRounds behavior.
func ToolResultCount(rounds []Round) int {
	n := 0
	for _, r := range rounds {
		n += len(r.ResultsHash)
	}
	return n
}
