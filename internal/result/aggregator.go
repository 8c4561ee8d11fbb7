package result

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateCell is returned when a cell is recorded twice.
	ErrDuplicateCell = errors.New("cell already recorded")
	// ErrFinalized is returned when recording after Finalize.
	ErrFinalized = errors.New("run already finalized")
)

type jobEntry struct {
	name     string
	failFast bool
	expected int
	cells    map[string]Cell
}

// Aggregator collects cell results from concurrent workers. It is safe for
// concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	id        string
	started   time.Time
	jobs      map[string]*jobEntry
	order     []string
	finalized bool
}

// NewAggregator starts a new run with a fresh run ID.
func NewAggregator() *Aggregator {
	return &Aggregator{
		id:      uuid.NewString(),
		started: time.Now(),
		jobs:    make(map[string]*jobEntry),
	}
}

// ID returns the run ID.
func (a *Aggregator) ID() string {
	return a.id
}

// DeclareJobs fixes the report order of jobs before they start. Jobs not
// declared here are appended in the order they are begun.
func (a *Aggregator) DeclareJobs(names ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, name := range names {
		a.entry(name)
	}
}

// BeginJob declares a job and how many cells it expands to.
func (a *Aggregator) BeginJob(name string, failFast bool, cells int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entry(name)
	e.failFast = failFast
	e.expected = cells
}

func (a *Aggregator) entry(name string) *jobEntry {
	e, ok := a.jobs[name]
	if !ok {
		e = &jobEntry{name: name, cells: make(map[string]Cell)}
		a.jobs[name] = e
		a.order = append(a.order, name)
	}
	return e
}

// Add records a final cell result. A cell is recorded once.
func (a *Aggregator) Add(c Cell) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return ErrFinalized
	}
	e := a.entry(c.Job)
	if _, ok := e.cells[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCell, c.ID)
	}
	e.cells[c.ID] = c
	return nil
}

// Snapshot returns the cells recorded so far, ordered by job and index.
func (a *Aggregator) Snapshot() []Cell {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Cell
	for _, name := range a.order {
		out = append(out, sortedCells(a.jobs[name])...)
	}
	return out
}

// Finalize closes the run and computes the verdicts. Further Adds fail.
// A job that recorded fewer cells than it expanded to is a failure.
func (a *Aggregator) Finalize() *Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true

	run := &Run{
		ID:       a.id,
		Started:  a.started,
		Duration: time.Since(a.started),
		Verdict:  VerdictSuccess,
		ExitCode: ExitSuccess,
	}
	for _, name := range a.order {
		e := a.jobs[name]
		job := Job{
			Name:     e.name,
			FailFast: e.failFast,
			Expected: e.expected,
			Cells:    sortedCells(e),
			Verdict:  VerdictSuccess,
		}
		for _, c := range job.Cells {
			switch c.Status {
			case CellSuccess:
				job.Passed++
			case CellCancelled:
				job.Cancelled++
			default:
				job.Failed++
			}
		}
		if job.Failed+job.Cancelled > 0 || len(job.Cells) < job.Expected {
			job.Verdict = VerdictFailure
			run.Verdict = VerdictFailure
			run.ExitCode = ExitFailure
		}
		run.Jobs = append(run.Jobs, job)
	}
	return run
}

func sortedCells(e *jobEntry) []Cell {
	out := make([]Cell, 0, len(e.cells))
	for _, c := range e.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out
}
