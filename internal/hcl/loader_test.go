package hcl

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

const testJobHCL = `
job "test" {
  fail_fast = true
  timeout   = "30m"
  env = {
    RUSTFLAGS = "-D warnings"
  }

  on {
    push         = ["main", "release/*"]
    pull_request = ["*"]
  }

  matrix {
    axis "runtime" {
      values = ["ubuntu-latest", "ubuntu-24.04-arm"]
    }
    axis "container" {
      values = ["ubuntu:24.04", "opensuse/tumbleweed"]
    }
    exclude = [{ runtime = "ubuntu-24.04-arm", container = "opensuse/tumbleweed" }]
  }

  provision {
    packages = ["clang", "lld"]
    toolchain "rust" {
      version    = "stable"
      components = ["clippy"]
    }
  }

  cache {
    paths      = ["target"]
    lock_files = ["**/Cargo.lock"]
  }

  step "install-deps" {
    run = "apt-get install -y clang"
    when {
      field = "container"
      op    = "contains"
      value = "ubuntu"
    }
  }

  step "build" {
    run     = "cargo build --target ${env.CI_TARGET_TRIPLE}"
    timeout = "10m"
  }

  step "clippy" {
    run           = "cargo clippy"
    policy        = "best-effort"
    condition     = "arch == 'x86_64'"
    deny_warnings = true
  }
}

job "fmt" {
  step "check" {
    run = "cargo fmt --check"
  }
}
`

func TestLoader_Parse(t *testing.T) {
	t.Parallel()

	// --- Act ---
	model, err := NewLoader().Parse(context.Background(), "ci.hcl", []byte(testJobHCL))

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, model.Jobs, 2)
	require.NoError(t, model.Validate())

	job := model.Job("test")
	require.NotNil(t, job)
	assert.Equal(t, "ci.hcl", job.Source)
	assert.True(t, job.FailFast)
	assert.True(t, job.FailFastSet)
	assert.Equal(t, 30*time.Minute, job.Timeout)
	assert.Equal(t, map[string]string{"RUSTFLAGS": "-D warnings"}, job.Env)
	assert.Equal(t, []string{"main", "release/*"}, job.Triggers.Push)
	assert.Equal(t, []string{"*"}, job.Triggers.PullRequest)

	assert.Equal(t, []matrix.Axis{
		{Name: "runtime", Values: []string{"ubuntu-latest", "ubuntu-24.04-arm"}},
		{Name: "container", Values: []string{"ubuntu:24.04", "opensuse/tumbleweed"}},
	}, job.Axes)
	assert.Equal(t, []map[string]string{{"runtime": "ubuntu-24.04-arm", "container": "opensuse/tumbleweed"}}, job.Exclude)
	assert.Empty(t, job.Include)

	require.NotNil(t, job.Provision)
	assert.Equal(t, []string{"clang", "lld"}, job.Provision.Packages)
	require.Len(t, job.Provision.Toolchains, 1)
	assert.Equal(t, "rust", job.Provision.Toolchains[0].Kind)
	assert.Equal(t, []string{"clippy"}, job.Provision.Toolchains[0].Components)

	require.NotNil(t, job.Cache)
	assert.Equal(t, []string{"**/Cargo.lock"}, job.Cache.LockFiles)

	require.Len(t, job.Steps, 3)
	install, build, clippy := job.Steps[0], job.Steps[1], job.Steps[2]

	assert.Equal(t, config.PolicyFatal, install.Policy)
	assert.Equal(t, []condition.Predicate{{Field: "container", Op: condition.OpContains, Value: "ubuntu"}}, install.When.All)

	assert.Equal(t, 10*time.Minute, build.Timeout)

	assert.Equal(t, config.PolicyBestEffort, clippy.Policy)
	assert.True(t, clippy.DenyWarnings)
	assert.Equal(t, []condition.Predicate{{Field: "arch", Op: condition.OpEquals, Value: "x86_64"}}, clippy.When.All)

	fmtJob := model.Job("fmt")
	require.NotNil(t, fmtJob)
	assert.False(t, fmtJob.FailFastSet)
	assert.Empty(t, fmtJob.Axes)
}

func TestLoader_RunTemplateRendersAgainstContext(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	model, err := NewLoader().Parse(context.Background(), "ci.hcl", []byte(testJobHCL))
	require.NoError(t, err)
	build := model.Job("test").Steps[1]

	cell := matrix.Cell{Job: "test", Pairs: []matrix.Pair{{Axis: "runtime", Value: "ubuntu-24.04-arm"}}}
	execCtx := environment.Resolve(cell, nil).With("CI_TARGET_TRIPLE", "aarch64-unknown-linux-gnu")

	// --- Act ---
	val, diags := build.Run.Value(execCtx.EvalContext())

	// --- Assert ---
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, cty.StringVal("cargo build --target aarch64-unknown-linux-gnu"), val)
}

func TestLoader_LoadWalksDirectories(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`job "a" {
  step "s" { run = "true" }
}`), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.hcl"), []byte(`job "b" {
  step "s" { run = "true" }
}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("job"), 0o600))

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), dir, filepath.Join(dir, "missing"))

	// --- Assert ---
	require.NoError(t, err)
	var names []string
	for _, j := range model.Jobs {
		names = append(names, j.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"syntax": `job "x" {`,
		"missing run": `
job "x" {
  step "s" {
  }
}`,
		"bad timeout": `
job "x" {
  timeout = "soon"
  step "s" {
    run = "true"
  }
}`,
		"bad operator": `
job "x" {
  step "s" {
    run = "true"
    when {
      field = "os"
      op    = "like"
      value = "x"
    }
  }
}`,
		"bad include": `
job "x" {
  matrix {
    include = "nope"
  }
  step "s" {
    run = "true"
  }
}`,
		"bad condition": `
job "x" {
  step "s" {
    run       = "true"
    condition = "os"
  }
}`,
		"unknown block": `
job "x" {
  bogus {
  }
}`,
		"non-string value": `
job "x" {
  matrix {
    exclude = [{ os = ["a"] }]
  }
  step "s" {
    run = "true"
  }
}`,
	}
	for name, src := range cases {
		_, err := NewLoader().Parse(context.Background(), "bad.hcl", []byte(src))
		require.Error(t, err, name)
		assert.ErrorIs(t, err, config.ErrConfiguration, name)
	}
}

func TestLoader_StepWithoutRunFailsAtLoad(t *testing.T) {
	t.Parallel()

	// --- Act ---
	_, err := NewLoader().Parse(context.Background(), "x.hcl", []byte(`job "x" { step "s" { } }`))

	// --- Assert ---
	require.ErrorIs(t, err, config.ErrConfiguration)
	assert.Contains(t, err.Error(), "step 's': missing required attribute 'run'")
}
