package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type leakOutput []struct {
	Allocator string `json:"allocator"`
	Stats     struct {
		Bytes int `json:"bytes"`
		Count int `json:"count"`
	} `json:"stats"`
	Allocs []struct {
		Ptr  string `json:"ptr"`
		Size int    `json:"size"`
		File string `json:"file"`
		Line int    `json:"line"`
	} `json:"allocs"`
}

func TestLeak_ReportsGroupThenSystem(t *testing.T) {
	out, _, err := runCommand(t, "leak", "--json", "--count", "2", "--size", "256")
	require.NoError(t, err)

	var reports leakOutput
	decodeJSON(t, out, &reports)
	require.Len(t, reports, 2)

	require.Equal(t, "leaky", reports[0].Allocator)
	require.Equal(t, 2, reports[0].Stats.Count)
	require.Len(t, reports[0].Allocs, 2)
	for _, rec := range reports[0].Allocs {
		require.Equal(t, 256, rec.Size)
		require.Contains(t, rec.File, "leak.go")
		require.NotEmpty(t, rec.Ptr)
	}

	// The group's control block went back to the system; its blocks did not.
	require.Equal(t, "system", reports[1].Allocator)
	require.Equal(t, 2, reports[1].Stats.Count)
	require.Len(t, reports[1].Allocs, 2)
}

func TestLeak_Text(t *testing.T) {
	out, _, err := runCommand(t, "leak", "--count", "1", "--detailed=false")
	require.NoError(t, err)
	require.Contains(t, out, "leak detected. allocator=leaky, count=1, size=256")
	require.Contains(t, out, "leak detected. allocator=system, count=1, size=256")
	require.NotContains(t, out, "allocated at")
}

func TestLeak_None(t *testing.T) {
	out, _, err := runCommand(t, "leak", "--count", "0")
	require.NoError(t, err)
	require.Contains(t, out, "No leaks detected")
}

func TestLeak_NegativeCount(t *testing.T) {
	_, _, err := runCommand(t, "leak", "--count", "-1")
	require.Error(t, err)
}
