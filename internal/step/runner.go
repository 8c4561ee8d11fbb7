package step

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// Command is a single script to execute for a cell.
type Command struct {
	Script string
	// Dir is the host working directory.
	Dir string
	// Env holds the context variables as KEY=VALUE pairs.
	Env []string
	// EnvFile is the host path of the step's export file, inside the
	// session's scratch directory. Runners expose it as $CI_ENV.
	EnvFile string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Runner executes commands. It returns the exit code of the script; a
// non-nil error means the script did not run to completion (it could not be
// started or the context ended), in which case the exit code is -1.
type Runner interface {
	Run(ctx context.Context, cmd *Command) (int, error)
}

// Session is a Runner bound to one cell. Everything a cell runs, from
// provisioning to its last step, goes through one session so that installed
// packages persist between commands.
type Session interface {
	Runner
	Close(ctx context.Context) error
}

// Spec describes the session a cell needs.
type Spec struct {
	// Image selects a container; empty runs on the host.
	Image string
	// Platform is the container platform, e.g. linux/arm64. Optional.
	Platform string
	// ScratchDir is a host directory private to the cell that holds the
	// export files.
	ScratchDir string
	// Workspace, when set, replaces the provider's workspace for this
	// session.
	Workspace string
}

// Provider opens sessions.
type Provider interface {
	Open(ctx context.Context, spec Spec) (Session, error)
}

// EnvFileKey names the variable pointing at the export file.
const EnvFileKey = "CI_ENV"

// ShellRunner runs scripts on the host with `sh -c`. The context variables
// are layered over the process environment.
type ShellRunner struct {
	// Shell defaults to "sh", resolved through PATH.
	Shell string
	// GracePeriod between SIGTERM and SIGKILL on cancellation. Zero kills
	// immediately.
	GracePeriod time.Duration
}

// Run implements Runner.
func (r *ShellRunner) Run(ctx context.Context, c *Command) (int, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", c.Script)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.Env = append(os.Environ(), c.Env...)
	if c.EnvFile != "" {
		cmd.Env = append(cmd.Env, EnvFileKey+"="+c.EnvFile)
	}
	killProcessGroup(cmd, r.GracePeriod)

	return wait(ctx, cmd.Run())
}

// Close implements Session. Host sessions hold no resources.
func (r *ShellRunner) Close(context.Context) error { return nil }

// wait maps the result of exec.Cmd.Run onto the Runner contract.
// A command that exited 0 succeeded even if ctx ended right after.
func wait(ctx context.Context, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}
	return -1, err
}

// Dispatcher opens container sessions with Container when the spec names an
// image and host sessions otherwise.
type Dispatcher struct {
	Host      *ShellRunner
	Container Provider
}

// Open implements Provider.
func (d *Dispatcher) Open(ctx context.Context, spec Spec) (Session, error) {
	if spec.Image == "" {
		return d.Host, nil
	}
	if d.Container == nil {
		return nil, errors.New("container requested but no container engine is configured")
	}
	return d.Container.Open(ctx, spec)
}
