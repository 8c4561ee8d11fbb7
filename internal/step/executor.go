package step

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/environment"
)

// Executor runs the steps of one cell in declared order.
type Executor struct {
	Runner Runner
	// Workspace is the directory relative working directories resolve
	// against.
	Workspace string
	// LogDir, when set, receives one log file per executed step.
	LogDir string
	// Output, when set, receives every line of step output prefixed with
	// the cell and step. Writes are serialized through OutputMu.
	Output   io.Writer
	OutputMu *sync.Mutex
	// ScratchDir holds the export files. It must be the scratch directory
	// of the session Runner belongs to; empty uses the system temp dir.
	ScratchDir string
}

// Run executes steps against execCtx and returns one Result per step that was
// reached plus the context after all exports. A failing fatal step aborts the
// remaining steps; a best-effort failure is recorded and execution goes on.
// Timeouts and cancellation always abort.
func (e *Executor) Run(ctx context.Context, execCtx environment.Context, steps []*config.Step) ([]Result, environment.Context) {
	logger := ctxlog.FromContext(ctx)
	results := make([]Result, 0, len(steps))

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Name: s.Name, Status: statusFor(err), ExitCode: -1, Error: err.Error()})
			logger.Warn("Step not started.", "step", s.Name, "reason", err)
			break
		}

		if !condition.Evaluate(s.When, execCtx) {
			logger.Info("⏭️ Skipping step, guard is false.", "step", s.Name, "when", s.When.String())
			results = append(results, Result{Name: s.Name, Status: StatusSkipped})
			continue
		}

		res, next := e.runOne(ctx, i, execCtx, s)
		results = append(results, res)
		if res.Status == StatusSuccess {
			execCtx = next
			continue
		}
		if res.Fatal() || res.Status == StatusTimedOut || res.Status == StatusCancelled {
			logger.Error("Step failed, aborting cell.", "step", s.Name, "status", res.Status, "exit_code", res.ExitCode)
			break
		}
		logger.Warn("Best-effort step failed, continuing.", "step", s.Name, "exit_code", res.ExitCode)
	}
	return results, execCtx
}

func (e *Executor) runOne(ctx context.Context, index int, execCtx environment.Context, s *config.Step) (Result, environment.Context) {
	logger := ctxlog.FromContext(ctx).With("step", s.Name)
	res := Result{
		Name:       s.Name,
		ExitCode:   -1,
		BestEffort: s.Policy == config.PolicyBestEffort,
	}
	start := time.Now()

	command, err := Render(s.Run, execCtx)
	if err != nil {
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("rendering command: %v", err)
		res.Duration = time.Since(start)
		return res, execCtx
	}
	res.Command = command
	stepCtx := execCtx.Merge(s.Env)

	envFile, err := os.CreateTemp(e.ScratchDir, fmt.Sprintf("%02d-*.env", index+1))
	if err != nil {
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("creating export file: %v", err)
		res.Duration = time.Since(start)
		return res, execCtx
	}
	envFile.Close()
	defer os.Remove(envFile.Name())
	// Container users other than root must be able to write it.
	_ = os.Chmod(envFile.Name(), 0o666)

	pattern := DefaultWarningPattern
	if s.WarningPattern != "" {
		if pattern, err = regexp.Compile(s.WarningPattern); err != nil {
			res.Status = StatusFailed
			res.Error = fmt.Sprintf("warning pattern: %v", err)
			res.Duration = time.Since(start)
			return res, execCtx
		}
	}
	counter := &lineCounter{pattern: pattern}
	writers := []io.Writer{counter}

	if e.LogDir != "" {
		f, path, err := e.openLog(execCtx.CellID(), index, s.Name)
		if err != nil {
			logger.Warn("Could not open step log file.", "error", err)
		} else {
			defer f.Close()
			fmt.Fprintf(f, "$ %s\n", command)
			writers = append(writers, f)
			res.LogFile = path
		}
	}
	var prefixed *prefixWriter
	if e.Output != nil {
		mu := e.OutputMu
		if mu == nil {
			mu = &sync.Mutex{}
		}
		prefixed = &prefixWriter{mu: mu, out: e.Output, prefix: []byte("[" + execCtx.CellID() + " " + s.Name + "] ")}
		writers = append(writers, prefixed)
	}
	out := io.MultiWriter(writers...)

	cmd := &Command{
		Script:  command,
		Dir:     e.workingDir(s.WorkingDir),
		Env:     stepCtx.Environ(),
		EnvFile: envFile.Name(),
		Stdout:  out,
		Stderr:  out,
	}

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	logger.Info("▶️ Running step.", "command", command)
	exitCode, runErr := e.Runner.Run(runCtx, cmd)
	if prefixed != nil {
		prefixed.Flush()
	}
	res.ExitCode = exitCode
	res.Warnings = counter.Count()
	res.Duration = time.Since(start)

	switch {
	case runErr != nil:
		res.Status = statusFor(runErr)
		res.Error = runErr.Error()
	case exitCode != 0:
		res.Status = StatusFailed
	case s.DenyWarnings && res.Warnings > 0:
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("%d warning(s) with deny_warnings set", res.Warnings)
	default:
		res.Status = StatusSuccess
	}
	logger.Info("Step finished.", "status", res.Status, "exit_code", exitCode, "duration", res.Duration, "warnings", res.Warnings)

	if res.Status != StatusSuccess {
		return res, execCtx
	}
	exports, err := ReadEnvFile(envFile.Name())
	if err != nil {
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("reading %s: %v", EnvFileKey, err)
		return res, execCtx
	}
	if len(exports) > 0 {
		logger.Debug("Step exported variables.", "count", len(exports))
	}
	return res, execCtx.Merge(exports)
}

func (e *Executor) workingDir(dir string) string {
	switch {
	case dir == "":
		return e.Workspace
	case filepath.IsAbs(dir):
		return dir
	default:
		return filepath.Join(e.Workspace, dir)
	}
}

func (e *Executor) openLog(cellID string, index int, name string) (*os.File, string, error) {
	dir := filepath.Join(e.LogDir, sanitize(cellID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d-%s.log", index+1, sanitize(name)))
	f, err := os.Create(path)
	return f, path, err
}

func statusFor(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimedOut
	}
	if errors.Is(err, context.Canceled) {
		return StatusCancelled
	}
	return StatusFailed
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
