package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/matrix"
	"github.com/vk/matrixgrid/internal/result"
)

// RunJob expands job and runs its cells on the worker pool. Cell failures are
// recorded in the aggregator and never returned; the returned error is a
// configuration error that prevented the job from starting.
//
// With fail-fast, the first failed cell stops dispatch: cells not yet started
// are recorded as cancelled and never executed, cells already running finish.
func (e *Executor) RunJob(ctx context.Context, job *config.Job) error {
	logger := ctxlog.FromContext(ctx).With("job", job.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	cells, err := matrix.Expand(job.Name, job.Axes, job.Include, job.Exclude)
	if err != nil {
		return fmt.Errorf("%w: job '%s': %w", config.ErrConfiguration, job.Name, err)
	}
	e.opts.Results.BeginJob(job.Name, job.FailFast, len(cells))
	if len(cells) == 0 {
		logger.Warn("Matrix excludes every cell, nothing to run.")
		return nil
	}
	for _, c := range cells {
		_ = e.opts.States.Register(ctx, job.Name, c.ID(), c.Index)
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	// dispatchCtx gates starting new cells; running cells only follow ctx.
	dispatchCtx, stopDispatch := context.WithCancelCause(ctx)
	defer stopDispatch(nil)

	workers := min(e.opts.Workers, len(cells))
	logger.Info("▶️ Starting job.", "cells", len(cells), "workers", workers, "fail_fast", job.FailFast)
	start := time.Now()

	cellChan := make(chan matrix.Cell)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.worker(ctx, dispatchCtx, job, cellChan, stopDispatch, workerID)
		}(i)
	}
	for _, c := range cells {
		cellChan <- c
	}
	close(cellChan)
	wg.Wait()

	logger.Info("🏁 Job finished.", "duration", time.Since(start))
	return nil
}

// worker is the processing loop of a single concurrent worker.
func (e *Executor) worker(ctx, dispatchCtx context.Context, job *config.Job, cells <-chan matrix.Cell, stopDispatch context.CancelCauseFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for c := range cells {
		cellLogger := logger.With("cell", c.ID(), "workerID", workerID)

		var res result.Cell
		if dispatchCtx.Err() != nil {
			cause := context.Cause(dispatchCtx)
			cellLogger.Info("⏭️ Cell not started.", "reason", cause)
			res = notStarted(c, cause)
		} else {
			res = e.runCell(ctxlog.WithLogger(ctx, cellLogger), job, c)
		}

		_ = e.opts.States.SetState(ctx, c.ID(), string(res.Status))
		if err := e.opts.Results.Add(res); err != nil {
			cellLogger.Error("Recording cell result failed.", "error", err)
		}

		if job.FailFast && (res.Status == result.CellStepFailed || res.Status == result.CellProvisioningFailed) {
			stopDispatch(fmt.Errorf("fail-fast after %s failed", c.ID()))
		}
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func notStarted(c matrix.Cell, cause error) result.Cell {
	return result.Cell{
		Job:      c.Job,
		ID:       c.ID(),
		Index:    c.Index,
		Matrix:   c.Values(),
		Status:   result.CellCancelled,
		ExitCode: -1,
		Error:    cause.Error(),
		Started:  time.Now(),
	}
}
