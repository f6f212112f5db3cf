package main

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return strings.TrimSpace(string(out)), runErr
}

func TestCompactCommand(t *testing.T) {
	out, err := runCLI(t, "compact", "8", "1,2,3", "5", "7")
	require.NoError(t, err)
	assert.Equal(t, "1-3,5,7-8", out)

	_, err = runCLI(t, "compact", "x")
	assert.Error(t, err)
}

func TestExpandCommand(t *testing.T) {
	out, err := runCLI(t, "expand", "1-3,5")
	require.NoError(t, err)
	assert.Equal(t, "1 2 3 5", out)

	_, err = runCLI(t, "expand", "3-1")
	assert.Error(t, err)
}

func TestStateCommandNeedsPorts(t *testing.T) {
	_, err := runCLI(t, "disable")
	assert.ErrorContains(t, err, "no ports given")
}
