// Package provision installs the OS packages and toolchains a cell requests
// before its steps run.
package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vk/matrixgrid/internal/cachekey"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/vk/matrixgrid/internal/registry"
	"github.com/vk/matrixgrid/internal/step"
)

// TargetTripleEnvKey receives the target of the first provisioned toolchain.
const TargetTripleEnvKey = "CI_TARGET_TRIPLE"

var (
	// ErrNoRecipe is returned when packages are requested but no recipe
	// matches the cell.
	ErrNoRecipe = errors.New("no provisioning recipe matches")
	// ErrNoInstaller is returned for a toolchain kind without installer.
	ErrNoInstaller = errors.New("no toolchain installer registered")
	// ErrCommandFailed is returned when an install command exits non-zero.
	ErrCommandFailed = errors.New("provisioning command failed")
)

// outputTail bounds the command output kept for error messages.
const outputTail = 4096

// Provisioner runs recipes and toolchain installers from a registry.
type Provisioner struct {
	Registry *registry.Registry
	// Workspace is the working directory of provisioning commands.
	Workspace string
}

// Outcome describes what was provisioned for a cell.
type Outcome struct {
	Recipe      string        `json:"recipe,omitempty"`
	Packages    []string      `json:"packages,omitempty"`
	Toolchains  []Installed   `json:"toolchains,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Duration    time.Duration `json:"duration"`
}

// Installed is one provisioned toolchain.
type Installed struct {
	Kind    string `json:"kind"`
	Version string `json:"version,omitempty"`
	Target  string `json:"target"`
}

// Provision installs req through runner and returns the context extended
// with the toolchains' exports. A nil request is a no-op with an empty
// fingerprint.
func (p *Provisioner) Provision(ctx context.Context, runner step.Runner, execCtx environment.Context, req *config.Provision) (environment.Context, *Outcome, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	out := &Outcome{}
	defer func() { out.Duration = time.Since(start) }()

	if req == nil {
		out.Fingerprint = cachekey.Fingerprint()
		return execCtx, out, nil
	}

	if len(req.Packages) > 0 {
		recipe, ok := p.Registry.MatchRecipe(execCtx)
		if !ok {
			return execCtx, out, fmt.Errorf("%w %s (os %q)", ErrNoRecipe, execCtx.CellID(), execCtx.OS())
		}
		out.Recipe = recipe.Name
		out.Packages = req.Packages
		logger.Info("📦 Installing packages.", "recipe", recipe.Name, "packages", req.Packages)

		if recipe.Update != "" {
			if _, err := p.run(ctx, runner, execCtx, recipe.Update); err != nil {
				return execCtx, out, err
			}
		}
		if _, err := p.run(ctx, runner, execCtx, recipe.Install+" "+QuoteAll(req.Packages)); err != nil {
			return execCtx, out, err
		}
	}

	parts := []string{}
	for _, tc := range req.Toolchains {
		inst, ok := p.Registry.Installer(tc.Kind)
		if !ok {
			return execCtx, out, fmt.Errorf("%w for '%s'", ErrNoInstaller, tc.Kind)
		}
		plan, err := inst.Plan(tc, execCtx)
		if err != nil {
			return execCtx, out, fmt.Errorf("planning toolchain '%s': %w", tc.Kind, err)
		}
		logger.Info("🧰 Installing toolchain.", "kind", tc.Kind, "version", tc.Version, "target", plan.Target)
		for _, command := range plan.Commands {
			if _, err := p.run(ctx, runner, execCtx, command); err != nil {
				return execCtx, out, err
			}
		}

		if len(out.Toolchains) == 0 && plan.Target != "" {
			execCtx = execCtx.With(TargetTripleEnvKey, plan.Target)
		}
		execCtx = execCtx.Merge(plan.Env)
		out.Toolchains = append(out.Toolchains, Installed{Kind: tc.Kind, Version: tc.Version, Target: plan.Target})

		parts = append(parts, tc.Kind, tc.Version, strings.Join(tc.Components, ","), strings.Join(tc.Targets, ","), plan.Target)
		if tc.FingerprintCommand != "" {
			output, err := p.run(ctx, runner, execCtx, tc.FingerprintCommand)
			if err != nil {
				return execCtx, out, fmt.Errorf("fingerprinting toolchain '%s': %w", tc.Kind, err)
			}
			parts = append(parts, strings.TrimSpace(output))
		}
	}
	out.Fingerprint = cachekey.Fingerprint(parts...)

	logger.Debug("Provisioning complete.", "fingerprint", out.Fingerprint, "duration", time.Since(start))
	return execCtx, out, nil
}

func (p *Provisioner) run(ctx context.Context, runner step.Runner, execCtx environment.Context, script string) (string, error) {
	var buf bytes.Buffer
	code, err := runner.Run(ctx, &step.Command{
		Script: script,
		Dir:    p.Workspace,
		Env:    execCtx.Environ(),
		Stdout: &buf,
		Stderr: &buf,
	})
	if err != nil {
		return "", fmt.Errorf("running %q: %w", script, err)
	}
	if code != 0 {
		return "", fmt.Errorf("%w: %q exited with %d: %s", ErrCommandFailed, script, code, tail(buf.String()))
	}
	ctxlog.FromContext(ctx).Debug("Provisioning command finished.", "command", script)
	return buf.String(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > outputTail {
		return "..." + s[len(s)-outputTail:]
	}
	return s
}

var safeWord = regexp.MustCompile(`^[A-Za-z0-9._+:@/=,-]+$`)

// Quote returns s quoted for a POSIX shell when it contains anything but
// safe characters.
func Quote(s string) string {
	if s != "" && safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteAll quotes and space-joins words.
func QuoteAll(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}
	return strings.Join(quoted, " ")
}
