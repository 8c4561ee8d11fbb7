package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/vk/matrixgrid/internal/cache"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/executor"
	"github.com/vk/matrixgrid/internal/provision"
	"github.com/vk/matrixgrid/internal/result"
	"github.com/vk/matrixgrid/internal/step"
)

// Run executes every selected job and returns the aggregated result. Jobs run
// concurrently and never affect each other; the returned error reports
// problems of the run itself, not failing cells, which are in the result.
func (a *App) Run(ctx context.Context) (*result.Run, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	cacheManager, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}

	agg := result.NewAggregator()
	a.setResults(agg)
	a.logger.Info("🚀 Starting run.", "run_id", agg.ID(), "jobs", len(a.model.Jobs), "workers", a.config.WorkerCount)

	exec := executor.New(executor.Options{
		Provider:    a.provider(),
		Provisioner: &provision.Provisioner{Registry: a.registry},
		Cache:       cacheManager,
		Results:     agg,
		States:      a.states,
		Workspace:   a.config.Workspace,
		Isolate:     a.config.Isolate,
		LogDir:      a.config.LogDir,
		Output:      a.stepOutput(),
		Workers:     a.config.WorkerCount,
	})

	names := make([]string, 0, len(a.model.Jobs))
	for _, job := range a.model.Jobs {
		names = append(names, job.Name)
	}
	agg.DeclareJobs(names...)

	var g errgroup.Group
	for _, job := range a.model.Jobs {
		g.Go(func() error {
			return exec.RunJob(ctx, job)
		})
	}
	runErr := g.Wait()

	run := agg.Finalize()
	a.logger.Info("🏁 Run finished.", "run_id", run.ID, "verdict", run.Verdict, "cells", run.Cells(), "not_passed", run.NotPassed(), "duration", run.Duration)

	if err := result.Render(a.outW, run); err != nil {
		a.logger.Error("Rendering report failed.", "error", err)
	}
	if a.config.ReportJSON != "" {
		if err := writeReport(a.config.ReportJSON, run); err != nil {
			return run, fmt.Errorf("writing JSON report: %w", err)
		}
	}
	return run, runErr
}

func (a *App) openCache(ctx context.Context) (*cache.Manager, error) {
	codec, err := cache.ParseCodec(a.config.CacheCodec)
	if err != nil {
		return nil, err
	}

	var store cache.Store
	switch a.config.CacheBackend {
	case CacheFile:
		store, err = cache.NewFileStore(a.config.CacheDir)
	case CacheS3:
		store, err = cache.NewS3Store(ctx, a.config.S3)
	default:
		a.logger.Debug("Cache disabled.")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", a.config.CacheBackend, err)
	}
	a.logger.Debug("Cache opened.", "backend", a.config.CacheBackend, "codec", codec)
	return &cache.Manager{Store: store, Codec: codec, Workspace: a.config.Workspace}, nil
}

func (a *App) provider() step.Provider {
	d := &step.Dispatcher{Host: &step.ShellRunner{GracePeriod: a.config.GracePeriod}}
	if a.config.ContainerEngine != "" {
		d.Container = &step.ContainerProvider{
			Engine:      a.config.ContainerEngine,
			Workspace:   a.config.Workspace,
			GracePeriod: a.config.GracePeriod,
		}
	}
	return d
}

// stepOutput is where step output streams, prefixed per cell and step.
func (a *App) stepOutput() io.Writer {
	if a.config.Quiet {
		return nil
	}
	return a.outW
}

func writeReport(path string, run *result.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := result.WriteJSON(f, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
