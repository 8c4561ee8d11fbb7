package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/matrixgrid/internal/cache"
	"github.com/vk/matrixgrid/internal/cachekey"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/vk/matrixgrid/internal/fsutil"
	"github.com/vk/matrixgrid/internal/inmemorystore"
	"github.com/vk/matrixgrid/internal/matrix"
	"github.com/vk/matrixgrid/internal/result"
	"github.com/vk/matrixgrid/internal/step"
)

// Phases reported to the state store.
const (
	phaseSession   = "session"
	phaseProvision = "provision"
	phaseRestore   = "cache-restore"
	phaseSteps     = "steps"
	phaseSave      = "cache-save"
)

// runCell runs the pipeline of one cell: resolve the context, open its
// session, provision, restore the cache, run the steps and save the cache.
// Every outcome, including setup errors, ends up in the returned result.
func (e *Executor) runCell(ctx context.Context, job *config.Job, c matrix.Cell) result.Cell {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	res := result.Cell{
		Job:     c.Job,
		ID:      c.ID(),
		Index:   c.Index,
		Matrix:  c.Values(),
		Started: start,
	}
	defer func() { res.Duration = time.Since(start) }()

	_ = e.opts.States.SetState(ctx, c.ID(), inmemorystore.StateRunning)
	execCtx := environment.Resolve(c, mergeEnv(e.opts.Env, job.Env))
	logger.Info("▶️ Starting cell.", "arch", execCtx.Arch(), "runtime", execCtx.Runtime(), "container", execCtx.Container())

	scratch, err := os.MkdirTemp(e.opts.ScratchRoot, "matrixgrid-cell-*")
	if err != nil {
		return provisioningFailed(res, fmt.Errorf("creating scratch directory: %w", err))
	}
	defer os.RemoveAll(scratch)

	workspace := e.opts.Workspace
	if e.opts.Isolate {
		workspace = filepath.Join(scratch, "workspace")
		if err := fsutil.CopyTree(e.opts.Workspace, workspace, e.skipInCopy); err != nil {
			return provisioningFailed(res, fmt.Errorf("copying workspace: %w", err))
		}
	}
	envDir := filepath.Join(scratch, "env")
	if err := os.Mkdir(envDir, 0o777); err != nil {
		return provisioningFailed(res, fmt.Errorf("creating export directory: %w", err))
	}

	_ = e.opts.States.SetPhase(ctx, c.ID(), phaseSession)
	session, err := e.opts.Provider.Open(ctx, step.Spec{
		Image:      execCtx.Container(),
		Platform:   platformFor(execCtx),
		ScratchDir: envDir,
		Workspace:  workspace,
	})
	if err != nil {
		return e.setupFailed(ctx, res, fmt.Errorf("opening session: %w", err))
	}
	defer func() {
		if err := session.Close(ctx); err != nil {
			logger.Warn("Closing session failed.", "error", err)
		}
	}()

	_ = e.opts.States.SetPhase(ctx, c.ID(), phaseProvision)
	provisioner := *e.opts.Provisioner
	provisioner.Workspace = workspace
	execCtx, outcome, err := provisioner.Provision(ctx, session, execCtx, job.Provision)
	res.Provision = outcome
	if err != nil {
		return e.setupFailed(ctx, res, err)
	}

	var key string
	if e.opts.Cache != nil && job.Cache != nil && len(job.Cache.Paths) > 0 {
		key = e.cacheKey(ctx, job.Cache, workspace, execCtx, outcome.Fingerprint)
	}
	cacheManager := e.cacheManager(workspace)
	if key != "" {
		_ = e.opts.States.SetPhase(ctx, c.ID(), phaseRestore)
		res.Cache = &result.CacheOutcome{Key: key, Restore: cacheManager.Restore(ctx, key)}
	}

	_ = e.opts.States.SetPhase(ctx, c.ID(), phaseSteps)
	steps := &step.Executor{
		Runner:     session,
		Workspace:  workspace,
		LogDir:     e.opts.LogDir,
		Output:     e.opts.Output,
		OutputMu:   &e.outputMu,
		ScratchDir: envDir,
	}
	res.Steps, _ = steps.Run(ctx, execCtx, job.Steps)
	res.Status = result.CellSuccess
	for _, sr := range res.Steps {
		if !sr.Fatal() && sr.Status != step.StatusTimedOut && sr.Status != step.StatusCancelled {
			continue
		}
		res.Status = result.CellStepFailed
		if sr.Status == step.StatusCancelled {
			res.Status = result.CellCancelled
		}
		res.FailedStep = sr.Name
		res.ExitCode = sr.ExitCode
		res.Error = sr.Error
		break
	}

	if res.Status != result.CellSuccess {
		logger.Error("❌ Cell failed.", "status", res.Status, "step", res.FailedStep, "exit_code", res.ExitCode)
		return res
	}

	if key != "" {
		_ = e.opts.States.SetPhase(ctx, c.ID(), phaseSave)
		res.Cache.Save = cacheManager.Save(ctx, key, job.Cache.Paths)
	}
	logger.Info("✅ Cell succeeded.", "duration", time.Since(start))
	return res
}

// setupFailed classifies an error raised before the steps ran.
func (e *Executor) setupFailed(ctx context.Context, res result.Cell, err error) result.Cell {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		res.Status = result.CellCancelled
		res.ExitCode = -1
		res.Error = err.Error()
		ctxlog.FromContext(ctx).Warn("Cell cancelled during setup.", "error", err)
		return res
	}
	ctxlog.FromContext(ctx).Error("❌ Provisioning failed.", "error", err)
	return provisioningFailed(res, err)
}

func provisioningFailed(res result.Cell, err error) result.Cell {
	res.Status = result.CellProvisioningFailed
	res.ExitCode = -1
	res.Error = err.Error()
	return res
}

func (e *Executor) cacheKey(ctx context.Context, req *config.Cache, workspace string, execCtx environment.Context, fingerprint string) string {
	logger := ctxlog.FromContext(ctx)
	lockHash, files, err := cachekey.HashLockFiles(workspace, req.LockFiles)
	if err != nil {
		logger.Warn("Hashing lock files failed, cache disabled for cell.", "error", err)
		return ""
	}
	key := cachekey.Derive(cachekey.Inputs{
		Prefix:    req.Prefix,
		OS:        execCtx.OS(),
		Arch:      execCtx.Arch(),
		Toolchain: fingerprint,
		LockHash:  lockHash,
	})
	logger.Debug("Cache key derived.", "key", key.String(), "lock_files", files)
	return key.String()
}

func (e *Executor) cacheManager(workspace string) *cache.Manager {
	if e.opts.Cache == nil {
		return nil
	}
	m := *e.opts.Cache
	m.Workspace = workspace
	return &m
}

// skipInCopy leaves VCS metadata and the engine's own output out of
// per-cell workspaces.
func (e *Executor) skipInCopy(rel string) bool {
	if rel == ".git" {
		return true
	}
	for _, dir := range []string{e.opts.LogDir, e.opts.ScratchRoot} {
		if dir == "" {
			continue
		}
		r, err := filepath.Rel(e.opts.Workspace, dir)
		if err == nil && !strings.HasPrefix(r, "..") && filepath.ToSlash(r) == rel {
			return true
		}
	}
	return false
}

// platformFor pins the container platform to the cell's architecture.
func platformFor(execCtx environment.Context) string {
	if execCtx.Container() == "" {
		return ""
	}
	if execCtx.Arch() == environment.ArchAarch64 {
		return "linux/arm64"
	}
	return "linux/amd64"
}

func mergeEnv(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
