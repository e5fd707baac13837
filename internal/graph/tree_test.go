package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeParse_RoundTrips(t *testing.T) {
	files := []string{"b.go", "a.go", "pkg/x.go", "pkg/sub/y.go", "pkg/sub/z.go"}
	encoded := EncodeFiles(files)
	got, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, sortedUnique(files), got)
}

func TestEncodeParse_DedupesAndSorts(t *testing.T) {
	files := []string{"b.go", "a.go", "a.go"}
	got, err := Parse(EncodeFiles(files))
	require.NoError(t, err)
	require.Equal(t, []string{"a.go", "b.go"}, got)
}

func TestBuildTree_CapsAt8000Lines(t *testing.T) {
	files := make([]string, 0, 9000)
	for i := 0; i < 9000; i++ {
		files = append(files, "f"+itoa(i)+".go")
	}
	n := BuildTree(files)
	require.LessOrEqual(t, len(n.Files), maxTreeLines)
}

func TestEncode_NestedStructure(t *testing.T) {
	files := []string{"dir/sub/file.go"}
	got := Encode(BuildTree(files))
	require.Equal(t, "{dir:{sub:{_:[file.go]}}}", got)
}
