package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type runOutput struct {
	Requested  int `json:"requested"`
	Allocated  int `json:"allocated"`
	Allocators []struct {
		Name  string `json:"name"`
		Owner string `json:"owner"`
		Stats struct {
			Bytes     int `json:"bytes"`
			Count     int `json:"count"`
			BytesPeak int `json:"bytes_peak"`
			CountPeak int `json:"count_peak"`
		} `json:"stats"`
		Used     *int `json:"used"`
		Capacity *int `json:"capacity"`
	} `json:"allocators"`
	Failed []struct {
		Allocator string `json:"allocator"`
		Size      int    `json:"size"`
		Alignment int    `json:"alignment"`
	} `json:"failed"`
}

func TestRun_Text(t *testing.T) {
	out, _, err := runCommand(t, "run", "128", "256")
	require.NoError(t, err)
	require.Contains(t, out, "Allocated 2 of 2 blocks")
	require.Contains(t, out, "ALLOCATOR")
	require.Contains(t, out, "system")
	// 16 bytes of header and padding in front of each block.
	require.Contains(t, out, "416/65536")
}

func TestRun_JSON(t *testing.T) {
	out, _, err := runCommand(t, "run", "--json", "128", "256")
	require.NoError(t, err)

	var res runOutput
	decodeJSON(t, out, &res)
	require.Equal(t, 2, res.Requested)
	require.Equal(t, 2, res.Allocated)
	require.Empty(t, res.Failed)
	require.Len(t, res.Allocators, 2)

	sys, stack := res.Allocators[0], res.Allocators[1]
	require.Equal(t, "system", sys.Name)
	require.Empty(t, sys.Owner)
	require.Nil(t, sys.Used)
	// The stack's buffer and control block.
	require.Equal(t, 2, sys.Stats.Count)

	require.Equal(t, "stack", stack.Name)
	require.Equal(t, "system", stack.Owner)
	require.Equal(t, 2, stack.Stats.Count)
	require.Equal(t, 416, stack.Stats.Bytes)
	require.NotNil(t, stack.Used)
	require.Equal(t, 416, *stack.Used)
	require.Equal(t, 65536, *stack.Capacity)
}

func TestRun_Group(t *testing.T) {
	out, _, err := runCommand(t, "run", "--json", "--group", "1k")
	require.NoError(t, err)

	var res runOutput
	decodeJSON(t, out, &res)
	require.Len(t, res.Allocators, 3)
	require.Equal(t, "system", res.Allocators[0].Name)
	require.Equal(t, "workload", res.Allocators[1].Name)
	require.Equal(t, "stack", res.Allocators[2].Name)
	require.Equal(t, "workload", res.Allocators[2].Owner)

	// Group control block, stack buffer and stack control block.
	require.Equal(t, 3, res.Allocators[0].Stats.Count)
	require.Equal(t, 2, res.Allocators[1].Stats.Count)
	require.Equal(t, 1, res.Allocators[2].Stats.Count)
}

func TestRun_Alignment(t *testing.T) {
	out, _, err := runCommand(t, "run", "--json", "--alignment", "256", "1")
	require.NoError(t, err)

	var res runOutput
	decodeJSON(t, out, &res)
	stack := res.Allocators[1]
	require.Equal(t, 1, stack.Stats.Count)
	require.Equal(t, 257, stack.Stats.Bytes)
}

func TestRun_OutOfMemory(t *testing.T) {
	out, _, err := runCommand(t, "run", "--json", "--stack-size", "256", "64", "1k")
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 allocations failed")

	var res runOutput
	decodeJSON(t, out, &res)
	require.Equal(t, 1, res.Allocated)
	require.Len(t, res.Failed, 1)
	require.Equal(t, "stack", res.Failed[0].Allocator)
	require.Equal(t, 1024, res.Failed[0].Size)
	require.Equal(t, 16, res.Failed[0].Alignment)
}

func TestRun_OversizeAsserts(t *testing.T) {
	_, stderr, err := runCommand(t, "run", "--stack-size", "1k", "8g")
	require.Error(t, err)
	require.Contains(t, err.Error(), "assertion failures")
	require.Contains(t, stderr, "size <= 0xffffffff")
}

func TestRun_InvalidSize(t *testing.T) {
	_, _, err := runCommand(t, "run", "12q")
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid size "12q"`)

	_, _, err = runCommand(t, "run", "--stack-size", "lots", "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--stack-size")
}

func TestRun_RequiresSizes(t *testing.T) {
	_, _, err := runCommand(t, "run")
	require.Error(t, err)
}

func TestRun_Quiet(t *testing.T) {
	out, _, err := runCommand(t, "run", "--quiet", "64")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"17", 17},
		{"4k", 4 << 10},
		{"4K", 4 << 10},
		{"2m", 2 << 20},
		{"1g", 1 << 30},
		{" 8 ", 8},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "k", "-1", "1.5k", "1t"} {
		_, err := parseSize(bad)
		require.Error(t, err, bad)
	}
}
