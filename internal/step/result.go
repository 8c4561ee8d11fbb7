package step

import "time"

// Status is the outcome of a single step.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusTimedOut  Status = "timed-out"
	StatusCancelled Status = "cancelled"
)

// Result records one executed (or skipped) step.
type Result struct {
	Name       string        `json:"name"`
	Command    string        `json:"command,omitempty"`
	Status     Status        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	Warnings   int           `json:"warnings,omitempty"`
	BestEffort bool          `json:"best_effort,omitempty"`
	Error      string        `json:"error,omitempty"`
	LogFile    string        `json:"log_file,omitempty"`
}

// Failed reports whether the step counts as a failure, regardless of policy.
func (r Result) Failed() bool {
	switch r.Status {
	case StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Fatal reports whether the step failed in a way that fails its cell.
func (r Result) Fatal() bool {
	return r.Failed() && !r.BestEffort
}
