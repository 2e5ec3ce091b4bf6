package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	out, _, err := runCommand(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "fragctl dev")
	require.Contains(t, out, "commit: none")
}
