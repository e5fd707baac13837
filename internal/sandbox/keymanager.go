package sandbox

import "fmt"

// Slot names a (provider, keyIndex) pair within the interleaved rotation
// pattern, per SPEC_FULL.md §4.1 API-key rotation.
type Slot struct {
	Provider ProviderType
	KeyIndex int
}

// KeyManager deterministically interleaves API keys across the configured
// providers in multi mode so that every key appears exactly once per cycle,
// with no provider starved when key counts differ.
type KeyManager struct {
	pattern []Slot
	pos     int
}

// NewKeyManager builds a KeyManager from an ordered list of (provider, key
// count) pairs. The slot count equals the sum of key counts; with unequal
// counts the classic round-robin-by-largest-remainder interleave is used so
// that the provider with the most keys is spread evenly across the cycle.
func NewKeyManager(counts []struct {
	Provider ProviderType
	Count    int
}) (*KeyManager, error) {
	total := 0
	for _, c := range counts {
		if c.Count < 0 {
			return nil, fmt.Errorf("sandbox: negative key count for provider %q", c.Provider)
		}
		total += c.Count
	}
	if total == 0 {
		return &KeyManager{}, nil
	}

	// Interleave via the classic "most keys first, evenly spaced" algorithm:
	// assign each provider's keys fractional positions proportional to its
	// share of the total, then sort all (position, provider, keyIndex)
	// tuples by position. This guarantees every key appears exactly once per
	// cycle and no provider is starved relative to its share.
	type placed struct {
		pos      float64
		provider ProviderType
		keyIndex int
	}
	var placements []placed
	for _, c := range counts {
		if c.Count == 0 {
			continue
		}
		step := float64(total) / float64(c.Count)
		for i := 0; i < c.Count; i++ {
			placements = append(placements, placed{
				pos:      step*float64(i) + step/2,
				provider: c.Provider,
				keyIndex: i,
			})
		}
	}
	// Stable insertion sort by pos; total is small (# of configured keys).
	for i := 1; i < len(placements); i++ {
		j := i
		for j > 0 && placements[j-1].pos > placements[j].pos {
			placements[j-1], placements[j] = placements[j], placements[j-1]
			j--
		}
	}
	pattern := make([]Slot, len(placements))
	for i, p := range placements {
		pattern[i] = Slot{Provider: p.provider, KeyIndex: p.keyIndex}
	}
	return &KeyManager{pattern: pattern}, nil
}

// Next advances through the slot pattern and returns the next slot.
func (k *KeyManager) Next() (Slot, bool) {
	if len(k.pattern) == 0 {
		return Slot{}, false
	}
	s := k.pattern[k.pos%len(k.pattern)]
	k.pos++
	return s, true
}

// Reset returns the manager to slot 0.
func (k *KeyManager) Reset() { k.pos = 0 }

// PatternLength returns the slot-pattern length (sum of key counts).
func (k *KeyManager) PatternLength() int { return len(k.pattern) }
