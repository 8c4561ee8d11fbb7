// Package executor runs jobs: it expands each job's matrix into cells,
// dispatches the cells to a bounded pool of workers and records every cell's
// final result.
package executor

import (
	"io"
	"os"
	"sync"

	"github.com/vk/matrixgrid/internal/cache"
	"github.com/vk/matrixgrid/internal/inmemorystore"
	"github.com/vk/matrixgrid/internal/provision"
	"github.com/vk/matrixgrid/internal/registry"
	"github.com/vk/matrixgrid/internal/result"
	"github.com/vk/matrixgrid/internal/step"
)

// Options configures an Executor.
type Options struct {
	// Provider opens the session each cell runs in.
	Provider    step.Provider
	Provisioner *provision.Provisioner
	// Cache is optional; nil disables caching.
	Cache   *cache.Manager
	Results *result.Aggregator
	// States receives live cell states. Optional.
	States *inmemorystore.Store

	// Workspace is the source tree steps run in.
	Workspace string
	// Isolate gives every cell its own copy of the workspace.
	Isolate bool
	// ScratchRoot holds per-cell scratch directories. Empty uses the
	// system temp directory.
	ScratchRoot string
	// LogDir receives per-step log files. Optional.
	LogDir string
	// Output receives prefixed step output. Optional.
	Output io.Writer

	// Workers bounds how many cells of a job run at once.
	Workers int
	// Env is merged under every job's env.
	Env map[string]string
}

// Executor runs jobs. It is safe to run several jobs concurrently on one
// Executor.
type Executor struct {
	opts     Options
	outputMu sync.Mutex
}

// New creates an Executor.
func New(opts Options) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ScratchRoot == "" {
		opts.ScratchRoot = os.TempDir()
	}
	if opts.States == nil {
		opts.States = inmemorystore.New()
	}
	if opts.Provisioner == nil {
		opts.Provisioner = &provision.Provisioner{Registry: registry.New()}
	}
	return &Executor{opts: opts}
}
