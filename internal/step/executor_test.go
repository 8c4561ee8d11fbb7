package step

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/vk/matrixgrid/internal/matrix"
)

// scriptedRunner answers commands from a table keyed by script.
type scriptedRunner struct {
	mu    sync.Mutex
	calls []*Command
	plays map[string]func(ctx context.Context, c *Command) (int, error)
}

func (r *scriptedRunner) Run(ctx context.Context, c *Command) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	play := r.plays[c.Script]
	r.mu.Unlock()
	if play == nil {
		return 0, nil
	}
	return play(ctx, c)
}

func (r *scriptedRunner) scripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c.Script)
	}
	return out
}

func tmpl(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "test", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func testContext(pairs ...string) environment.Context {
	c := matrix.Cell{Job: "test"}
	for i := 0; i+1 < len(pairs); i += 2 {
		c.Pairs = append(c.Pairs, matrix.Pair{Axis: pairs[i], Value: pairs[i+1]})
	}
	return environment.Resolve(c, map[string]string{"GREETING": "hi"})
}

func exitWith(code int) func(context.Context, *Command) (int, error) {
	return func(context.Context, *Command) (int, error) { return code, nil }
}

func TestExecutor_FatalFailureShortCircuits(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	runner := &scriptedRunner{plays: map[string]func(context.Context, *Command) (int, error){
		"make build": exitWith(2),
	}}
	e := &Executor{Runner: runner, ScratchDir: t.TempDir()}
	steps := []*config.Step{
		{Name: "fetch", Run: tmpl(t, "git fetch"), Policy: config.PolicyFatal},
		{Name: "build", Run: tmpl(t, "make build"), Policy: config.PolicyFatal},
		{Name: "test", Run: tmpl(t, "make test"), Policy: config.PolicyFatal},
	}

	// --- Act ---
	results, _ := e.Run(context.Background(), testContext(), steps)

	// --- Assert ---
	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Equal(t, 2, results[1].ExitCode)
	assert.True(t, results[1].Fatal())
	assert.Equal(t, []string{"git fetch", "make build"}, runner.scripts(), "the third step must never run")
}

func TestExecutor_BestEffortContinues(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{plays: map[string]func(context.Context, *Command) (int, error){
		"lint": exitWith(1),
	}}
	e := &Executor{Runner: runner, ScratchDir: t.TempDir()}
	steps := []*config.Step{
		{Name: "lint", Run: tmpl(t, "lint"), Policy: config.PolicyBestEffort},
		{Name: "build", Run: tmpl(t, "build"), Policy: config.PolicyFatal},
	}

	results, _ := e.Run(context.Background(), testContext(), steps)

	require.Len(t, results, 2)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.True(t, results[0].BestEffort)
	assert.False(t, results[0].Fatal())
	assert.Equal(t, StatusSuccess, results[1].Status)
}

func TestExecutor_GuardSkipsStep(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	runner := &scriptedRunner{}
	e := &Executor{Runner: runner, ScratchDir: t.TempDir()}
	onlyUbuntu := condition.Guard{All: []condition.Predicate{{Field: "container", Op: condition.OpContains, Value: "ubuntu"}}}
	steps := []*config.Step{
		{Name: "apt", Run: tmpl(t, "apt-get install -y clang"), When: onlyUbuntu, Policy: config.PolicyFatal},
		{Name: "build", Run: tmpl(t, "build"), Policy: config.PolicyFatal},
	}

	// --- Act ---
	suse, _ := e.Run(context.Background(), testContext("container", "opensuse/tumbleweed"), steps)
	ubuntu, _ := e.Run(context.Background(), testContext("container", "ubuntu:24.04"), steps)

	// --- Assert ---
	assert.Equal(t, StatusSkipped, suse[0].Status)
	assert.Equal(t, StatusSuccess, suse[1].Status)
	assert.Equal(t, StatusSuccess, ubuntu[0].Status)
	assert.Equal(t, []string{"build", "apt-get install -y clang", "build"}, runner.scripts())
}

func TestExecutor_RendersAndThreadsExports(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	runner := &scriptedRunner{plays: map[string]func(context.Context, *Command) (int, error){
		"export": func(_ context.Context, c *Command) (int, error) {
			return 0, os.WriteFile(c.EnvFile, []byte("VERSION=1.2.3\nNOTES<<EOF\na\nb\nEOF\n"), 0o600)
		},
	}}
	e := &Executor{Runner: runner, ScratchDir: t.TempDir()}
	steps := []*config.Step{
		{Name: "export", Run: tmpl(t, "export"), Policy: config.PolicyFatal},
		{Name: "use", Run: tmpl(t, `echo ${env.GREETING} ${upper(arch)} ${env.VERSION}`), Policy: config.PolicyFatal, Env: map[string]string{"EXTRA": "1"}},
	}

	// --- Act ---
	results, final := e.Run(context.Background(), testContext("runtime", "ubuntu-24.04-arm"), steps)

	// --- Assert ---
	require.Len(t, results, 2)
	assert.Equal(t, "echo hi AARCH64 1.2.3", results[1].Command)
	v, _ := final.Lookup("VERSION")
	assert.Equal(t, "1.2.3", v)
	notes, _ := final.Lookup("NOTES")
	assert.Equal(t, "a\nb", notes)

	second := runner.calls[1]
	assert.Contains(t, second.Env, "VERSION=1.2.3")
	assert.Contains(t, second.Env, "EXTRA=1")
	_, leaked := final.Lookup("EXTRA")
	assert.False(t, leaked, "step env must not leak into later steps")
}

func TestExecutor_DenyWarnings(t *testing.T) {
	t.Parallel()

	warn := func(_ context.Context, c *Command) (int, error) {
		fmt.Fprintln(c.Stdout, "compiling")
		fmt.Fprintln(c.Stderr, "warning: unused variable `x`")
		return 0, nil
	}
	runner := &scriptedRunner{plays: map[string]func(context.Context, *Command) (int, error){
		"clippy": warn,
		"build":  warn,
	}}
	e := &Executor{Runner: runner, ScratchDir: t.TempDir()}
	steps := []*config.Step{
		{Name: "build", Run: tmpl(t, "build"), Policy: config.PolicyFatal},
		{Name: "clippy", Run: tmpl(t, "clippy"), Policy: config.PolicyFatal, DenyWarnings: true},
	}

	results, _ := e.Run(context.Background(), testContext(), steps)

	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, 1, results[0].Warnings)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Equal(t, 0, results[1].ExitCode)
	assert.Contains(t, results[1].Error, "deny_warnings")
}

func TestExecutor_StepTimeout(t *testing.T) {
	t.Parallel()

	block := func(ctx context.Context, _ *Command) (int, error) {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	runner := &scriptedRunner{plays: map[string]func(context.Context, *Command) (int, error){
		"hang": block,
	}}
	e := &Executor{Runner: runner, ScratchDir: t.TempDir()}
	steps := []*config.Step{
		{Name: "hang", Run: tmpl(t, "hang"), Policy: config.PolicyBestEffort, Timeout: 20 * time.Millisecond},
		{Name: "after", Run: tmpl(t, "after"), Policy: config.PolicyFatal},
	}

	results, _ := e.Run(context.Background(), testContext(), steps)

	require.Len(t, results, 1, "a timeout aborts the cell even for best-effort steps")
	assert.Equal(t, StatusTimedOut, results[0].Status)
	assert.Equal(t, -1, results[0].ExitCode)
}

func TestExecutor_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &scriptedRunner{}
	e := &Executor{Runner: runner, ScratchDir: t.TempDir()}

	results, _ := e.Run(ctx, testContext(), []*config.Step{{Name: "a", Run: tmpl(t, "a")}})

	require.Len(t, results, 1)
	assert.Equal(t, StatusCancelled, results[0].Status)
	assert.Empty(t, runner.scripts())
}

func TestExecutor_RenderErrorFailsStep(t *testing.T) {
	t.Parallel()

	e := &Executor{Runner: &scriptedRunner{}, ScratchDir: t.TempDir()}

	results, _ := e.Run(context.Background(), testContext(), []*config.Step{
		{Name: "bad", Run: tmpl(t, "echo ${env.MISSING}"), Policy: config.PolicyFatal},
	})

	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "rendering command")
}

func TestExecutor_OutputAndLogFiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	runner := &scriptedRunner{plays: map[string]func(context.Context, *Command) (int, error){
		"say": func(_ context.Context, c *Command) (int, error) {
			fmt.Fprint(c.Stdout, "line one\nline two")
			return 0, nil
		},
	}}
	var out bytes.Buffer
	logDir := t.TempDir()
	e := &Executor{Runner: runner, ScratchDir: t.TempDir(), Output: &out, LogDir: logDir}

	// --- Act ---
	results, _ := e.Run(context.Background(), testContext(), []*config.Step{{Name: "say", Run: tmpl(t, "say")}})

	// --- Assert ---
	require.Len(t, results, 1)
	assert.Equal(t, "[test say] line one\n[test say] line two\n", out.String())
	require.NotEmpty(t, results[0].LogFile)
	data, err := os.ReadFile(results[0].LogFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "$ say\nline one\n"))
}
