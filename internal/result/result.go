package result

import (
	"time"

	"github.com/vk/matrixgrid/internal/cache"
	"github.com/vk/matrixgrid/internal/provision"
	"github.com/vk/matrixgrid/internal/step"
)

// CellStatus is the final status of a cell.
type CellStatus string

const (
	CellSuccess            CellStatus = "success"
	CellStepFailed         CellStatus = "step-failed"
	CellProvisioningFailed CellStatus = "provisioning-failed"
	CellCancelled          CellStatus = "cancelled"
)

// Verdict is the aggregate outcome of a job or run.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictFailure Verdict = "failure"
)

// Process exit codes for a verdict.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// CacheOutcome records what happened to the cell's cache entry.
type CacheOutcome struct {
	Key     string       `json:"key"`
	Restore cache.Status `json:"restore,omitempty"`
	Save    cache.Status `json:"save,omitempty"`
}

// Cell is the final record of one matrix cell.
type Cell struct {
	Job    string            `json:"job"`
	ID     string            `json:"id"`
	Index  int               `json:"index"`
	Matrix map[string]string `json:"matrix,omitempty"`

	Status     CellStatus    `json:"status"`
	Steps      []step.Result `json:"steps,omitempty"`
	FailedStep string        `json:"failed_step,omitempty"`
	ExitCode   int           `json:"exit_code"`
	Error      string        `json:"error,omitempty"`

	Cache     *CacheOutcome      `json:"cache,omitempty"`
	Provision *provision.Outcome `json:"provision,omitempty"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the cell counts as passed.
func (c Cell) Succeeded() bool {
	return c.Status == CellSuccess
}

// Job groups the cells of one job.
type Job struct {
	Name     string  `json:"name"`
	FailFast bool    `json:"fail_fast"`
	Expected int     `json:"expected"`
	Cells    []Cell  `json:"cells"`
	Verdict  Verdict `json:"verdict"`

	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Run is the result of a whole invocation.
type Run struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Jobs     []Job         `json:"jobs"`
	Verdict  Verdict       `json:"verdict"`
	ExitCode int           `json:"exit_code"`
}

// Cells returns the total number of recorded cells.
func (r *Run) Cells() int {
	n := 0
	for _, j := range r.Jobs {
		n += len(j.Cells)
	}
	return n
}

// NotPassed returns the number of cells that did not succeed.
func (r *Run) NotPassed() int {
	n := 0
	for _, j := range r.Jobs {
		n += j.Failed + j.Cancelled
	}
	return n
}
