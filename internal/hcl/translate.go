package hcl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/matrix"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// translateJob converts the HCL-specific job schema into the agnostic model.
func (l *Loader) translateJob(ctx context.Context, file string, b *jobBlock) (*config.Job, error) {
	logger := ctxlog.FromContext(ctx)

	job := &config.Job{
		Name:   b.Name,
		Source: file,
		Env:    b.Env,
	}
	if b.FailFast != nil {
		job.FailFast = *b.FailFast
		job.FailFastSet = true
	}
	if b.On != nil {
		job.Triggers = config.Triggers{
			Push:        b.On.Push,
			PullRequest: b.On.PullRequest,
			Manual:      b.On.Manual,
		}
	}

	var err error
	if job.Timeout, err = parseDuration(b.Timeout); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	if b.Matrix != nil {
		for _, a := range b.Matrix.Axes {
			job.Axes = append(job.Axes, matrix.Axis{Name: a.Name, Values: a.Values})
		}
		if job.Include, err = stringMaps(b.Matrix.Include); err != nil {
			return nil, fmt.Errorf("matrix include: %w", err)
		}
		if job.Exclude, err = stringMaps(b.Matrix.Exclude); err != nil {
			return nil, fmt.Errorf("matrix exclude: %w", err)
		}
	}

	if b.Provision != nil {
		job.Provision = &config.Provision{Packages: b.Provision.Packages}
		for _, tc := range b.Provision.Toolchains {
			job.Provision.Toolchains = append(job.Provision.Toolchains, &config.Toolchain{
				Kind:               tc.Kind,
				Version:            tc.Version,
				Components:         tc.Components,
				Targets:            tc.Targets,
				FingerprintCommand: tc.Fingerprint,
			})
		}
	}

	if b.Cache != nil {
		job.Cache = &config.Cache{
			Prefix:    b.Cache.Prefix,
			Paths:     b.Cache.Paths,
			LockFiles: b.Cache.LockFiles,
		}
	}

	for _, sb := range b.Steps {
		s, err := translateStep(sb)
		if err != nil {
			return nil, fmt.Errorf("step '%s': %w", sb.Name, err)
		}
		job.Steps = append(job.Steps, s)
	}

	logger.Debug("Translated job.", "job", job.Name, "axes", len(job.Axes), "steps", len(job.Steps))
	return job, nil
}

func translateStep(b *stepBlock) (*config.Step, error) {
	if config.MissingExpr(b.Run) {
		return nil, errors.New("missing required attribute 'run'")
	}
	s := &config.Step{
		Name:           b.Name,
		Run:            b.Run,
		Policy:         config.PolicyFatal,
		DenyWarnings:   b.DenyWarnings,
		WarningPattern: b.WarningPattern,
		WorkingDir:     b.WorkingDir,
		Env:            b.Env,
	}
	if b.Policy != "" {
		s.Policy = config.Policy(b.Policy)
	}

	var err error
	if s.Timeout, err = parseDuration(b.Timeout); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	if b.Condition != "" {
		if s.When, err = condition.Parse(b.Condition); err != nil {
			return nil, err
		}
	}
	all, err := predicates(b.When)
	if err != nil {
		return nil, err
	}
	anyOf, err := predicates(b.WhenAny)
	if err != nil {
		return nil, err
	}
	s.When.All = append(s.When.All, all...)
	s.When.Any = append(s.When.Any, anyOf...)
	return s, nil
}

func predicates(blocks []*predicateBlock) ([]condition.Predicate, error) {
	var out []condition.Predicate
	for _, pb := range blocks {
		op, err := condition.ParseOp(pb.Op)
		if err != nil {
			return nil, err
		}
		out = append(out, condition.Predicate{Field: pb.Field, Op: op, Value: pb.Value})
	}
	return out, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// stringMaps evaluates a constant list of objects whose attributes are all
// strings, as used by matrix include and exclude.
func stringMaps(expr hcl.Expression) ([]map[string]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsTupleType() && !val.Type().IsListType() {
		return nil, fmt.Errorf("expected a list of objects, got %s", val.Type().FriendlyName())
	}

	var out []map[string]string
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.IsNull() || !(elem.Type().IsObjectType() || elem.Type().IsMapType()) {
			return nil, fmt.Errorf("expected an object, got %s", elem.Type().FriendlyName())
		}
		entry := make(map[string]string)
		for eit := elem.ElementIterator(); eit.Next(); {
			k, v := eit.Element()
			sv, err := convert.Convert(v, cty.String)
			if err != nil || sv.IsNull() {
				return nil, fmt.Errorf("value of %q must be a string", k.AsString())
			}
			entry[k.AsString()] = sv.AsString()
		}
		out = append(out, entry)
	}
	return out, nil
}
