// Package rustup registers the installer for the "rust" toolchain kind.
package rustup

import (
	"fmt"
	"strings"

	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/vk/matrixgrid/internal/registry"
)

// Kind is the toolchain kind handled by this module.
const Kind = "rust"

const bootstrap = "command -v rustup >/dev/null 2>&1 || " +
	"curl --proto '=https' --tlsv1.2 -sSf https://sh.rustup.rs | sh -s -- -y --profile minimal --default-toolchain none"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Installer plans rustup invocations.
type Installer struct{}

// TargetTriple returns the rust target triple for a cell.
func TargetTriple(ctx environment.Context) (string, error) {
	var cpu string
	switch ctx.Arch() {
	case environment.ArchAarch64:
		cpu = "aarch64"
	case environment.ArchX86_64:
		cpu = "x86_64"
	default:
		return "", fmt.Errorf("no rust target for architecture %q", ctx.Arch())
	}

	switch environment.InferOSFamily(ctx.OS()) {
	case environment.FamilyDarwin:
		return cpu + "-apple-darwin", nil
	case environment.FamilyWindows:
		return cpu + "-pc-windows-msvc", nil
	}
	if environment.IsMusl(ctx.OS()) {
		return cpu + "-unknown-linux-musl", nil
	}
	return cpu + "-unknown-linux-gnu", nil
}

// Plan installs the requested channel with its components, the declared
// targets and the target of the cell's architecture.
func (Installer) Plan(tc *config.Toolchain, ctx environment.Context) (*registry.Plan, error) {
	triple, err := TargetTriple(ctx)
	if err != nil {
		return nil, err
	}
	version := tc.Version
	if version == "" {
		version = "stable"
	}

	targets := []string{triple}
	for _, t := range tc.Targets {
		if t != triple {
			targets = append(targets, t)
		}
	}

	install := []string{"rustup", "toolchain", "install", version, "--profile", "minimal", "--no-self-update"}
	if len(tc.Components) > 0 {
		install = append(install, "--component", strings.Join(tc.Components, ","))
	}
	install = append(install, "--target", strings.Join(targets, ","))

	return &registry.Plan{
		Commands: []string{
			bootstrap,
			strings.Join(install, " "),
			"rustup default " + version,
		},
		Target: triple,
		Env: map[string]string{
			"CARGO_BUILD_TARGET": triple,
			"RUSTUP_TOOLCHAIN":   version,
		},
	}, nil
}

// Register registers the installer with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterInstaller(Kind, Installer{})
}
