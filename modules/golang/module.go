// Package golang registers the installer for the "go" toolchain kind.
package golang

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/vk/matrixgrid/internal/registry"
)

// Kind is the toolchain kind handled by this module.
const Kind = "go"

// InstallDir is where release archives are unpacked.
const InstallDir = "/usr/local"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Installer downloads official Go release archives.
type Installer struct{}

// Platform returns GOOS and GOARCH for a cell.
func Platform(ctx environment.Context) (goos, goarch string, err error) {
	switch ctx.Arch() {
	case environment.ArchAarch64:
		goarch = "arm64"
	case environment.ArchX86_64:
		goarch = "amd64"
	default:
		return "", "", fmt.Errorf("no Go port for architecture %q", ctx.Arch())
	}
	return environment.InferOSFamily(ctx.OS()), goarch, nil
}

// Plan downloads and unpacks the requested release. Components are not
// meaningful for Go and are ignored.
func (Installer) Plan(tc *config.Toolchain, ctx environment.Context) (*registry.Plan, error) {
	version := strings.TrimPrefix(tc.Version, "go")
	if version == "" {
		return nil, errors.New("go toolchain requires an explicit version")
	}
	goos, goarch, err := Platform(ctx)
	if err != nil {
		return nil, err
	}
	if goos == environment.FamilyWindows {
		return nil, errors.New("go toolchain installation is not supported on windows runners")
	}

	archive := fmt.Sprintf("https://go.dev/dl/go%s.%s-%s.tar.gz", version, goos, goarch)
	return &registry.Plan{
		Commands: []string{
			fmt.Sprintf("rm -rf %s/go && curl -sSfL %s | tar -C %s -xz", InstallDir, archive, InstallDir),
			InstallDir + "/go/bin/go version",
		},
		Target: goos + "/" + goarch,
		Env: map[string]string{
			"GOOS":        goos,
			"GOARCH":      goarch,
			"GOROOT":      InstallDir + "/go",
			"GOTOOLCHAIN": "local",
		},
	}, nil
}

// Register registers the installer with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterInstaller(Kind, Installer{})
}
