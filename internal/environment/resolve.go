package environment

import (
	"strings"
	"unicode"

	"github.com/vk/matrixgrid/internal/matrix"
)

// Architecture tags.
const (
	ArchAarch64 = "aarch64"
	ArchX86_64  = "x86_64"
)

// Axes with a special meaning during resolution.
const (
	ContainerAxis = "container"
	ArchAxis      = "arch"
)

// RuntimeAxes are checked in order for the runner label of a cell.
var RuntimeAxes = []string{"runtime", "runs-on", "os"}

var armMarkers = map[string]struct{}{
	"arm":     {},
	"arm64":   {},
	"aarch64": {},
}

// Resolve maps a cell to its execution context. base holds job-level
// variables; the injected CI_* and MATRIX_* variables take precedence.
func Resolve(cell matrix.Cell, base map[string]string) Context {
	values := cell.Values()

	var runtime string
	for _, axis := range RuntimeAxes {
		if v, ok := values[axis]; ok {
			runtime = v
			break
		}
	}
	container := values[ContainerAxis]

	arch := InferArch(runtime)
	if explicit, ok := values[ArchAxis]; ok && explicit != "" {
		arch = NormalizeArch(explicit)
	}

	osID := runtime
	if container != "" {
		osID = container
	}

	env := make(map[string]string, len(base)+len(values)+6)
	for k, v := range base {
		env[k] = v
	}
	for axis, v := range values {
		env[MatrixEnvPrefix+envName(axis)] = v
	}
	env[ArchEnvKey] = arch
	env[RuntimeEnvKey] = runtime
	env[ContainerEnvKey] = container
	env[OSEnvKey] = osID
	env[JobEnvKey] = cell.Job
	env[CellEnvKey] = cell.ID()

	return Context{
		job:       cell.Job,
		cellID:    cell.ID(),
		arch:      arch,
		runtime:   runtime,
		container: container,
		osID:      osID,
		matrix:    values,
		env:       env,
	}
}

// InferArch derives the architecture tag from a runner label: a label with an
// ARM marker token is aarch64, anything else x86_64.
func InferArch(label string) string {
	for _, token := range strings.FieldsFunc(strings.ToLower(label), isSeparator) {
		if _, ok := armMarkers[token]; ok {
			return ArchAarch64
		}
	}
	return ArchX86_64
}

// NormalizeArch maps common aliases onto the two architecture tags and passes
// anything else through unchanged.
func NormalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "arm", "arm64", "aarch64":
		return ArchAarch64
	case "amd64", "x64", "x86_64", "x86-64":
		return ArchX86_64
	}
	return arch
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

func envName(axis string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, axis)
}

// Operating system families.
const (
	FamilyLinux   = "linux"
	FamilyDarwin  = "darwin"
	FamilyWindows = "windows"
)

// InferOSFamily derives the OS family from an OS identity such as
// "macos-14", "windows-latest" or "ubuntu:24.04". Unknown labels are linux.
func InferOSFamily(osID string) string {
	for _, token := range strings.FieldsFunc(strings.ToLower(osID), isSeparator) {
		switch token {
		case "macos", "darwin", "osx":
			return FamilyDarwin
		case "windows", "win":
			return FamilyWindows
		}
	}
	return FamilyLinux
}

// IsMusl reports whether the OS identity names a musl-based distribution.
func IsMusl(osID string) bool {
	id := strings.ToLower(osID)
	return strings.Contains(id, "alpine") || strings.Contains(id, "musl")
}
