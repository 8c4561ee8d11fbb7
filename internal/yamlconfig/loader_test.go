package yamlconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/vk/matrixgrid/internal/matrix"
	"github.com/zclconf/go-cty/cty"
)

const testWorkflow = `
jobs:
  test:
    on:
      push: [main]
    timeout-minutes: 45
    env:
      RUST_BACKTRACE: "1"
    strategy:
      fail-fast: false
      matrix:
        runtime: [ubuntu-latest, ubuntu-24.04-arm]
        container: ["ubuntu:24.04", "opensuse/tumbleweed"]
        include:
          - runtime: macos-latest
    provision:
      packages: [clang]
      toolchains:
        - kind: rust
          version: "1.80"
          targets: [wasm32-unknown-unknown]
    cache:
      paths: [target]
      lock-files: ["**/Cargo.lock"]
    steps:
      - name: zypper
        run: zypper install -y clang
        if: container contains opensuse
      - name: build
        run: cargo build --target ${{ env.CI_TARGET_TRIPLE }} --out ${HOME}/out
        timeout: 5m
      - run: cargo test
        continue-on-error: true
        when-any:
          - {field: arch, op: equals, value: aarch64}
          - {field: os, op: prefix, value: ubuntu}
  lint:
    steps:
      - name: clippy
        run: cargo clippy
        deny-warnings: true
`

func TestLoader_Parse(t *testing.T) {
	t.Parallel()

	// --- Act ---
	model, err := NewLoader().Parse(context.Background(), "ci.yml", []byte(testWorkflow))

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, model.Jobs, 2)
	assert.Equal(t, "test", model.Jobs[0].Name)
	assert.Equal(t, "lint", model.Jobs[1].Name)
	require.NoError(t, model.Validate())

	job := model.Jobs[0]
	assert.Equal(t, []string{"main"}, job.Triggers.Push)
	assert.Equal(t, 45*time.Minute, job.Timeout)
	assert.True(t, job.FailFastSet)
	assert.False(t, job.FailFast)
	assert.Equal(t, []matrix.Axis{
		{Name: "runtime", Values: []string{"ubuntu-latest", "ubuntu-24.04-arm"}},
		{Name: "container", Values: []string{"ubuntu:24.04", "opensuse/tumbleweed"}},
	}, job.Axes)
	assert.Equal(t, []map[string]string{{"runtime": "macos-latest"}}, job.Include)
	assert.Equal(t, "1.80", job.Provision.Toolchains[0].Version)
	assert.Equal(t, []string{"**/Cargo.lock"}, job.Cache.LockFiles)

	require.Len(t, job.Steps, 3)
	assert.Equal(t, []condition.Predicate{{Field: "container", Op: condition.OpContains, Value: "opensuse"}}, job.Steps[0].When.All)
	assert.Equal(t, 5*time.Minute, job.Steps[1].Timeout)

	unnamed := job.Steps[2]
	assert.Equal(t, "step-3", unnamed.Name)
	assert.Equal(t, config.PolicyBestEffort, unnamed.Policy)
	assert.Len(t, unnamed.When.Any, 2)

	lint := model.Jobs[1]
	assert.False(t, lint.FailFastSet)
	assert.True(t, lint.Steps[0].DenyWarnings)
	assert.Equal(t, config.PolicyFatal, lint.Steps[0].Policy)
}

func TestLoader_RunInterpolation(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	model, err := NewLoader().Parse(context.Background(), "ci.yml", []byte(testWorkflow))
	require.NoError(t, err)
	build := model.Jobs[0].Steps[1]
	execCtx := environment.Resolve(matrix.Cell{Job: "test"}, nil).With("CI_TARGET_TRIPLE", "x86_64-unknown-linux-gnu")

	// --- Act ---
	val, diags := build.Run.Value(execCtx.EvalContext())

	// --- Assert ---
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, cty.StringVal("cargo build --target x86_64-unknown-linux-gnu --out ${HOME}/out"), val)
}

func TestToHCLTemplate(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"plain":              "plain",
		"${{ matrix.os }}":   "${matrix.os}",
		"echo ${HOME}":       "echo $${HOME}",
		"%{ if }":            "%%{ if }",
		"a ${{arch}} b ${X}": "a ${arch} b $${X}",
	}
	for in, want := range cases {
		got, err := toHCLTemplate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := toHCLTemplate("echo ${{ env.X")
	assert.Error(t, err)
	_, err = toHCLTemplate("echo ${{ }}")
	assert.Error(t, err)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown top key": "pipelines: {}\n",
		"missing run":     "jobs:\n  x:\n    steps:\n      - name: a\n",
		"bad timeout":     "jobs:\n  x:\n    timeout: soon\n    steps:\n      - run: 'true'\n",
		"bad if":          "jobs:\n  x:\n    steps:\n      - run: 'true'\n        if: os\n",
		"bad op":          "jobs:\n  x:\n    steps:\n      - run: 'true'\n        when: [{field: os, op: like, value: x}]\n",
		"bad axis":        "jobs:\n  x:\n    strategy:\n      matrix:\n        os: {a: b}\n    steps:\n      - run: 'true'\n",
		"jobs not map":    "jobs: [a]\n",
	}
	for name, src := range cases {
		_, err := NewLoader().Parse(context.Background(), "bad.yml", []byte(src))
		require.Error(t, err, name)
		assert.ErrorIs(t, err, config.ErrConfiguration, name)
	}
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("jobs:\n  a:\n    steps:\n      - run: 'true'\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("jobs:\n  b:\n    steps:\n      - run: 'true'\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.hcl"), []byte("job \"c\" {}"), 0o600))

	model, err := NewLoader().Load(context.Background(), dir)

	require.NoError(t, err)
	require.Len(t, model.Jobs, 2)
	assert.NotNil(t, model.Job("a"))
	assert.NotNil(t, model.Job("b"))
}
