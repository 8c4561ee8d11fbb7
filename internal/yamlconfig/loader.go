package yamlconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/fsutil"
	"github.com/vk/matrixgrid/internal/matrix"
	"gopkg.in/yaml.v3"
)

// Extensions are the file extensions of YAML job declarations.
var Extensions = []string{".yml", ".yaml"}

// Loader is the YAML implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new YAML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every YAML file found under the given paths.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path_count", len(paths))

	files, err := fsutil.FindFilesByExtension(paths, Extensions...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered YAML files.", "count", len(files))

	model := &config.Model{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		m, err := l.Parse(ctx, file, data)
		if err != nil {
			return nil, err
		}
		model.Merge(m)
	}

	logger.Debug("YAML loading complete.", "jobs", len(model.Jobs))
	return model, nil
}

// Parse decodes a single in-memory declaration. Unknown top-level keys are
// rejected.
func (l *Loader) Parse(ctx context.Context, filename string, data []byte) (*config.Model, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to decode YAML file %s: %w", config.ErrConfiguration, filename, err)
	}

	model := &config.Model{}
	for _, js := range doc.Jobs {
		job, err := translateJob(filename, js)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: job '%s': %w", config.ErrConfiguration, filename, js.Name, err)
		}
		ctxlog.FromContext(ctx).Debug("Translated job.", "job", job.Name, "axes", len(job.Axes), "steps", len(job.Steps))
		model.Jobs = append(model.Jobs, job)
	}
	return model, nil
}

func translateJob(file string, js *jobSpec) (*config.Job, error) {
	job := &config.Job{
		Name:   js.Name,
		Source: file,
		Env:    js.Env,
	}
	if js.On != nil {
		job.Triggers = config.Triggers{Push: js.On.Push, PullRequest: js.On.PullRequest, Manual: js.On.Manual}
	}

	failFast := js.FailFast
	if js.Strategy != nil && js.Strategy.FailFast != nil {
		failFast = js.Strategy.FailFast
	}
	if failFast != nil {
		job.FailFast = *failFast
		job.FailFastSet = true
	}

	var err error
	if job.Timeout, err = timeout(js.Timeout, js.TimeoutMinutes); err != nil {
		return nil, err
	}

	if js.Strategy != nil && js.Strategy.Matrix != nil {
		m := js.Strategy.Matrix
		for _, a := range m.Axes {
			job.Axes = append(job.Axes, matrix.Axis{Name: a.Name, Values: a.Values})
		}
		job.Include = m.Include
		job.Exclude = m.Exclude
	}

	if p := js.Provision; p != nil {
		job.Provision = &config.Provision{Packages: p.Packages}
		for _, tc := range p.Toolchains {
			job.Provision.Toolchains = append(job.Provision.Toolchains, &config.Toolchain{
				Kind:               tc.Kind,
				Version:            tc.Version,
				Components:         tc.Components,
				Targets:            tc.Targets,
				FingerprintCommand: tc.Fingerprint,
			})
		}
	}
	if c := js.Cache; c != nil {
		job.Cache = &config.Cache{Prefix: c.Prefix, Paths: c.Paths, LockFiles: c.LockFiles}
	}

	for i, ss := range js.Steps {
		s, err := translateStep(file, i, ss)
		if err != nil {
			return nil, fmt.Errorf("step '%s': %w", s.Name, err)
		}
		job.Steps = append(job.Steps, s)
	}
	return job, nil
}

// translateStep always returns a step carrying the resolved name so callers
// can report it alongside the error.
func translateStep(file string, index int, ss *stepSpec) (*config.Step, error) {
	s := &config.Step{
		Name:           ss.Name,
		Policy:         config.PolicyFatal,
		DenyWarnings:   ss.DenyWarnings,
		WarningPattern: ss.WarningPattern,
		WorkingDir:     ss.WorkingDir,
		Env:            ss.Env,
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("step-%d", index+1)
	}
	switch {
	case ss.Policy != "":
		s.Policy = config.Policy(ss.Policy)
	case ss.ContinueOnError:
		s.Policy = config.PolicyBestEffort
	}

	var err error
	if s.Timeout, err = timeout(ss.Timeout, ss.TimeoutMinutes); err != nil {
		return s, err
	}
	if ss.Run == "" {
		return s, errors.New("missing run command")
	}
	if s.Run, err = parseRun(file, ss.Run); err != nil {
		return s, fmt.Errorf("run: %w", err)
	}

	if s.When, err = condition.Parse(ss.If); err != nil {
		return s, err
	}
	for _, group := range []struct {
		specs []predicateSpec
		dst   *[]condition.Predicate
	}{
		{ss.When, &s.When.All},
		{ss.WhenAny, &s.When.Any},
	} {
		for _, ps := range group.specs {
			op, err := condition.ParseOp(ps.Op)
			if err != nil {
				return s, err
			}
			*group.dst = append(*group.dst, condition.Predicate{Field: ps.Field, Op: op, Value: ps.Value})
		}
	}
	return s, nil
}

func timeout(s string, minutes int) (time.Duration, error) {
	if s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("timeout: %w", err)
		}
		return d, nil
	}
	return time.Duration(minutes) * time.Minute, nil
}
