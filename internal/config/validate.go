package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/matrixgrid/internal/matrix"
)

// ErrConfiguration marks malformed declarations. It is fatal before any cell
// starts and reported once for the whole run.
var ErrConfiguration = errors.New("configuration error")

// Validate checks the whole model and returns every problem found, wrapped in
// ErrConfiguration.
func (m *Model) Validate() error {
	var errs []string
	seen := make(map[string]string)

	for _, job := range m.Jobs {
		if job.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: job without a name", job.Source))
			continue
		}
		if prev, dup := seen[job.Name]; dup {
			errs = append(errs, fmt.Sprintf("job '%s' declared twice (%s and %s)", job.Name, prev, job.Source))
		}
		seen[job.Name] = job.Source
		errs = append(errs, job.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n- %s", ErrConfiguration, strings.Join(errs, "\n- "))
	}
	return nil
}

func (j *Job) validate() []string {
	var errs []string
	if _, err := matrix.Expand(j.Name, j.Axes, j.Include, j.Exclude); err != nil {
		errs = append(errs, err.Error())
	}
	if len(j.Steps) == 0 {
		errs = append(errs, fmt.Sprintf("job '%s' has no steps", j.Name))
	}
	if j.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("job '%s' has a negative timeout", j.Name))
	}

	steps := make(map[string]struct{}, len(j.Steps))
	for i, s := range j.Steps {
		where := fmt.Sprintf("job '%s' step %d", j.Name, i+1)
		if s.Name != "" {
			where = fmt.Sprintf("job '%s' step '%s'", j.Name, s.Name)
			if _, dup := steps[s.Name]; dup {
				errs = append(errs, where+" declared twice")
			}
			steps[s.Name] = struct{}{}
		}
		if MissingExpr(s.Run) {
			errs = append(errs, where+" has no command")
		}
		switch s.Policy {
		case PolicyFatal, PolicyBestEffort:
		default:
			errs = append(errs, fmt.Sprintf("%s has unknown policy '%s'", where, s.Policy))
		}
		if err := s.When.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", where, err))
		}
		if s.WarningPattern != "" {
			if _, err := regexp.Compile(s.WarningPattern); err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid warning pattern: %v", where, err))
			}
		}
	}

	if p := j.Provision; p != nil {
		for _, tc := range p.Toolchains {
			if tc.Kind == "" {
				errs = append(errs, fmt.Sprintf("job '%s' declares a toolchain without a kind", j.Name))
			}
		}
	}
	if c := j.Cache; c != nil && len(c.Paths) == 0 {
		errs = append(errs, fmt.Sprintf("job '%s' declares a cache without paths", j.Name))
	}
	return errs
}

// MissingExpr reports whether expr stands for an absent attribute. gohcl
// fills an omitted hcl.Expression field with a static null, which has no
// variables and evaluates to null without a context.
func MissingExpr(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}
	v, diags := expr.Value(nil)
	return !diags.HasErrors() && v.IsNull()
}
