package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixgrid/internal/cli"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_ConfigurationErrorExitsWithUsage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A job without its closing brace fails to parse before any cell starts.
	path := writeFile(t, "main.hcl", `
job "test" {
  step "a" {
    run = "true"
`)
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-C", t.TempDir(), path})

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitUsage, exitErr.Code)
	assert.Contains(t, exitErr.Message, "configuration error")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	assert.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitUsage, exitErr.Code)
	assert.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_ExitCodeFollowsVerdict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("steps run through sh")
	}
	t.Parallel()

	passing := writeFile(t, "ok.hcl", `
job "ok" {
  step "a" {
    run = "true"
  }
}
`)
	failing := writeFile(t, "bad.hcl", `
job "bad" {
  step "a" {
    run = "false"
  }
}
`)

	err := run(context.Background(), &bytes.Buffer{}, []string{"-q", "-C", t.TempDir(), passing})
	require.NoError(t, err)

	err = run(context.Background(), &bytes.Buffer{}, []string{"-q", "-C", t.TempDir(), failing})
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitRunFailed, exitErr.Code)
}
