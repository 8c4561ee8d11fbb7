package rustup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/vk/matrixgrid/internal/matrix"
)

func resolve(pairs ...string) environment.Context {
	c := matrix.Cell{Job: "build"}
	for i := 0; i+1 < len(pairs); i += 2 {
		c.Pairs = append(c.Pairs, matrix.Pair{Axis: pairs[i], Value: pairs[i+1]})
	}
	return environment.Resolve(c, nil)
}

func TestTargetTriple(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ctx  environment.Context
		want string
	}{
		{resolve("runtime", "ubuntu-latest"), "x86_64-unknown-linux-gnu"},
		{resolve("runtime", "ubuntu-24.04-arm"), "aarch64-unknown-linux-gnu"},
		{resolve("runtime", "ubuntu-24.04-arm", "container", "alpine:3.20"), "aarch64-unknown-linux-musl"},
		{resolve("runtime", "macos-14", "arch", "arm64"), "aarch64-apple-darwin"},
		{resolve("runtime", "windows-latest"), "x86_64-pc-windows-msvc"},
	}
	for _, tc := range cases {
		got, err := TargetTriple(tc.ctx)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.ctx.CellID())
	}

	_, err := TargetTriple(resolve("arch", "riscv64"))
	assert.Error(t, err)
}

func TestInstaller_PlanDiffersPerArchitecture(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	tc := &config.Toolchain{Kind: Kind, Components: []string{"clippy", "rustfmt"}, Targets: []string{"wasm32-unknown-unknown"}}

	// --- Act ---
	x86, err := Installer{}.Plan(tc, resolve("runtime", "ubuntu-latest"))
	require.NoError(t, err)
	arm, err := Installer{}.Plan(tc, resolve("runtime", "ubuntu-24.04-arm"))
	require.NoError(t, err)

	// --- Assert ---
	assert.NotEqual(t, x86.Target, arm.Target)
	assert.Equal(t, "aarch64-unknown-linux-gnu", arm.Target)
	assert.Equal(t, "aarch64-unknown-linux-gnu", arm.Env["CARGO_BUILD_TARGET"])
	require.Len(t, arm.Commands, 3)
	assert.Equal(t,
		"rustup toolchain install stable --profile minimal --no-self-update --component clippy,rustfmt --target aarch64-unknown-linux-gnu,wasm32-unknown-unknown",
		arm.Commands[1])
	assert.Equal(t, "rustup default stable", arm.Commands[2])
}
