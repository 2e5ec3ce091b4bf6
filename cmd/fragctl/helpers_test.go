package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag variable to its default so tests sharing
// rootCmd do not observe each other's arguments.
func resetFlags() {
	verbose, quiet, jsonOut = false, false, false
	runStackSize, runGroup, runDetailed, runAlignment = "64k", false, false, 0
	leakCount, leakSize, leakDetailed = 3, "256", true
}

// runCommand executes fragctl with args and returns what it wrote to
// stdout and stderr.
func runCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeJSON unmarshals output into v, failing the test if it is not JSON.
func decodeJSON(t *testing.T, output string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(output), v), "output: %s", output)
}
