package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/matrix"
)

// Model is the unified representation of all loaded job declarations.
type Model struct {
	Jobs []*Job
}

// Job returns the job with the given name, or nil.
func (m *Model) Job(name string) *Job {
	for _, j := range m.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Merge appends the jobs of other to m.
func (m *Model) Merge(other *Model) {
	if other == nil {
		return
	}
	m.Jobs = append(m.Jobs, other.Jobs...)
}

// Job is one independently scheduled job. It is immutable once a run starts.
type Job struct {
	Name   string
	Source string

	Triggers Triggers

	Axes    []matrix.Axis
	Include []map[string]string
	Exclude []map[string]string

	// FailFast cancels not-yet-started cells after the first failed cell.
	// FailFastSet records whether the declaration stated it explicitly.
	FailFast    bool
	FailFastSet bool

	Env     map[string]string
	Timeout time.Duration

	Provision *Provision
	Cache     *Cache
	Steps     []*Step
}

// Policy decides what a failing step does to its cell.
type Policy string

const (
	// PolicyFatal aborts the remaining steps of the cell.
	PolicyFatal Policy = "fatal"
	// PolicyBestEffort records the failure and continues.
	PolicyBestEffort Policy = "best-effort"
)

// Step is a single command of a job.
type Step struct {
	Name string
	// Run is the command template, rendered against the cell's context.
	Run            hcl.Expression
	When           condition.Guard
	Policy         Policy
	Timeout        time.Duration
	DenyWarnings   bool
	WarningPattern string
	WorkingDir     string
	Env            map[string]string
}

// Provision describes what a cell needs installed before its steps run.
type Provision struct {
	Packages   []string
	Toolchains []*Toolchain
}

// Toolchain is a language toolchain request, e.g. rust@stable.
type Toolchain struct {
	Kind       string
	Version    string
	Components []string
	Targets    []string
	// FingerprintCommand, when set, is run after installation and its output
	// contributes to the toolchain fingerprint used in cache keys.
	FingerprintCommand string
}

// Cache describes the paths a job caches and the lock files keying them.
type Cache struct {
	Prefix    string
	Paths     []string
	LockFiles []string
}
