package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyManager_OneToSixRotation(t *testing.T) {
	km, err := NewKeyManager([]struct {
		Provider ProviderType
		Count    int
	}{
		{Provider: ProviderDaytonaLike, Count: 1},
		{Provider: ProviderMicroVMLike, Count: 6},
	})
	require.NoError(t, err)
	require.Equal(t, 7, km.PatternLength())

	seen := map[Slot]int{}
	for i := 0; i < 7; i++ {
		s, ok := km.Next()
		require.True(t, ok)
		seen[s]++
	}
	require.Len(t, seen, 7, "each (provider, keyIndex) must appear exactly once per cycle")
	for slot, count := range seen {
		require.Equalf(t, 1, count, "slot %+v seen %d times", slot, count)
	}

	daytonaCount, microvmCount := 0, 0
	for slot := range seen {
		switch slot.Provider {
		case ProviderDaytonaLike:
			daytonaCount++
		case ProviderMicroVMLike:
			microvmCount++
		}
	}
	require.Equal(t, 1, daytonaCount)
	require.Equal(t, 6, microvmCount)
}

func TestKeyManager_CyclesRepeat(t *testing.T) {
	km, err := NewKeyManager([]struct {
		Provider ProviderType
		Count    int
	}{{Provider: ProviderDaytonaLike, Count: 3}})
	require.NoError(t, err)

	var first []Slot
	for i := 0; i < 3; i++ {
		s, _ := km.Next()
		first = append(first, s)
	}
	var second []Slot
	for i := 0; i < 3; i++ {
		s, _ := km.Next()
		second = append(second, s)
	}
	require.Equal(t, first, second)
}

func TestKeyManager_Reset(t *testing.T) {
	km, err := NewKeyManager([]struct {
		Provider ProviderType
		Count    int
	}{{Provider: ProviderDaytonaLike, Count: 2}})
	require.NoError(t, err)
	first, _ := km.Next()
	km.Next()
	km.Reset()
	afterReset, _ := km.Next()
	require.Equal(t, first, afterReset)
}

func TestKeyManager_Empty(t *testing.T) {
	km, err := NewKeyManager(nil)
	require.NoError(t, err)
	_, ok := km.Next()
	require.False(t, ok)
}
