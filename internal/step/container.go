package step

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/matrixgrid/internal/ctxlog"
)

// Mount points inside the container.
const (
	ContainerWorkspace = "/workspace"
	ContainerScratch   = "/run/matrixgrid"
)

// idleScript keeps the container alive between exec calls.
const idleScript = "trap 'exit 0' TERM INT; while :; do sleep 3600 & wait $!; done"

// ContainerProvider starts one long-lived container per cell through a
// Docker-compatible engine CLI (docker, podman, nerdctl) and runs every
// command of the cell with `exec` inside it. The workspace is bind-mounted
// at /workspace and the cell's scratch directory at /run/matrixgrid.
type ContainerProvider struct {
	// Engine is the CLI binary, e.g. "docker".
	Engine string
	// Workspace is the host directory mounted into the container unless the
	// spec names its own.
	Workspace   string
	GracePeriod time.Duration
}

// Open implements Provider.
func (p *ContainerProvider) Open(ctx context.Context, spec Spec) (Session, error) {
	args, err := p.StartArgs(spec)
	if err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Engine, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("starting container %s: %w: %s", spec.Image, err, strings.TrimSpace(stderr.String()))
	}
	id := strings.TrimSpace(stdout.String())
	if id == "" {
		return nil, fmt.Errorf("starting container %s: engine returned no container id", spec.Image)
	}
	ctxlog.FromContext(ctx).Debug("Container started.", "image", spec.Image, "container_id", id)
	return &containerSession{provider: p, id: id, scratch: spec.ScratchDir, workspace: spec.Workspace}, nil
}

// StartArgs builds the engine arguments starting the idle cell container.
func (p *ContainerProvider) StartArgs(spec Spec) ([]string, error) {
	workspace, err := filepath.Abs(firstNonEmpty(spec.Workspace, p.Workspace))
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	args := []string{"run", "-d", "--rm",
		"-v", workspace + ":" + ContainerWorkspace,
		"-w", ContainerWorkspace,
	}
	if spec.ScratchDir != "" {
		args = append(args, "-v", spec.ScratchDir+":"+ContainerScratch)
	}
	if spec.Platform != "" {
		args = append(args, "--platform", spec.Platform)
	}
	return append(args, "--entrypoint", "sh", spec.Image, "-c", idleScript), nil
}

type containerSession struct {
	provider  *ContainerProvider
	id        string
	scratch   string
	workspace string
}

// Run implements Runner.
func (s *containerSession) Run(ctx context.Context, c *Command) (int, error) {
	args, err := s.ExecArgs(c)
	if err != nil {
		return -1, err
	}
	cmd := exec.CommandContext(ctx, s.provider.Engine, args...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	killProcessGroup(cmd, s.provider.GracePeriod)

	return wait(ctx, cmd.Run())
}

// ExecArgs builds the engine arguments running one command in the session.
func (s *containerSession) ExecArgs(c *Command) ([]string, error) {
	workspace, err := filepath.Abs(firstNonEmpty(s.workspace, s.provider.Workspace))
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	workdir := ContainerWorkspace
	if c.Dir != "" {
		rel, err := filepath.Rel(workspace, c.Dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("working directory %s is outside the workspace %s", c.Dir, workspace)
		}
		workdir = filepath.ToSlash(filepath.Join(ContainerWorkspace, rel))
	}

	args := []string{"exec", "-i", "-w", workdir}
	if c.EnvFile != "" {
		rel, err := filepath.Rel(s.scratch, c.EnvFile)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("export file %s is outside the scratch directory %s", c.EnvFile, s.scratch)
		}
		args = append(args, "-e", EnvFileKey+"="+ContainerScratch+"/"+filepath.ToSlash(rel))
	}
	for _, kv := range c.Env {
		args = append(args, "-e", kv)
	}
	return append(args, s.id, "sh", "-c", c.Script), nil
}

// Close removes the container.
func (s *containerSession) Close(ctx context.Context) error {
	// Removal must happen even when the cell was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, s.provider.Engine, "rm", "-f", s.id).CombinedOutput()
	if err != nil {
		return fmt.Errorf("removing container %s: %w: %s", s.id, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
