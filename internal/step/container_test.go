package step

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerProvider_StartArgs(t *testing.T) {
	t.Parallel()

	ws := t.TempDir()
	p := &ContainerProvider{Engine: "docker", Workspace: ws}

	args, err := p.StartArgs(Spec{Image: "ubuntu:24.04", Platform: "linux/arm64", ScratchDir: "/tmp/cell"})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"run", "-d", "--rm",
		"-v", ws + ":/workspace",
		"-w", "/workspace",
		"-v", "/tmp/cell:/run/matrixgrid",
		"--platform", "linux/arm64",
		"--entrypoint", "sh", "ubuntu:24.04", "-c", idleScript,
	}, args)
}

func TestContainerSession_ExecArgs(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ws := t.TempDir()
	scratch := t.TempDir()
	s := &containerSession{provider: &ContainerProvider{Engine: "podman", Workspace: ws}, id: "abc123", scratch: scratch}

	// --- Act ---
	args, err := s.ExecArgs(&Command{
		Script:  "cargo build",
		Dir:     filepath.Join(ws, "crates", "core"),
		Env:     []string{"CI_ARCH=aarch64"},
		EnvFile: filepath.Join(scratch, "01-x.env"),
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{
		"exec", "-i", "-w", "/workspace/crates/core",
		"-e", "CI_ENV=/run/matrixgrid/01-x.env",
		"-e", "CI_ARCH=aarch64",
		"abc123", "sh", "-c", "cargo build",
	}, args)

	_, err = s.ExecArgs(&Command{Script: "x", Dir: filepath.Dir(ws)})
	assert.Error(t, err, "working directories outside the workspace are rejected")
}

func TestDispatcher_Open(t *testing.T) {
	t.Parallel()

	host := &ShellRunner{}
	d := &Dispatcher{Host: host}

	s, err := d.Open(context.Background(), Spec{})
	require.NoError(t, err)
	assert.Same(t, host, s)

	_, err = d.Open(context.Background(), Spec{Image: "alpine"})
	assert.Error(t, err)
}

func TestContainerProvider_StartArgs_SpecWorkspace(t *testing.T) {
	t.Parallel()

	cellWS := t.TempDir()
	p := &ContainerProvider{Engine: "docker", Workspace: t.TempDir()}

	args, err := p.StartArgs(Spec{Image: "alpine:3.20", Workspace: cellWS})

	require.NoError(t, err)
	assert.Contains(t, args, cellWS+":/workspace")
}
