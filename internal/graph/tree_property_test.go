package graph

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestEncodeParseProperty checks the round-trip invariant
// Parse(Encode(files)) == sortedUnique(files) against randomly generated
// file lists, grounded on runtime/a2a/retry/retry_test.go's gopter usage.
func TestEncodeParseProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	pathGen := gen.SliceOfN(6, gen.OneConstOf("a", "b", "c", "dir", "sub")).
		Map(func(parts []string) string { return strings.Join(parts, "/") })

	properties.Property("round-trips for any generated file list", prop.ForAll(
		func(files []string) bool {
			got, err := Parse(EncodeFiles(files))
			if err != nil {
				return false
			}
			want := sortedUnique(files)
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, pathGen),
	))

	properties.TestingRun(t)
}
