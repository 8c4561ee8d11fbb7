package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/hcl"
	"github.com/vk/matrixgrid/internal/yamlconfig"
)

// loaders returns every declaration format the engine reads.
func loaders() []config.Loader {
	return []config.Loader{hcl.NewLoader(), yamlconfig.NewLoader()}
}

// load reads recipes and declarations, validates them and selects the jobs
// of this run.
func (a *App) load(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if a.config.RecipesPath != "" {
		if err := a.registry.LoadRecipesRecursively(ctx, a.config.RecipesPath); err != nil {
			return fmt.Errorf("%w: loading recipes: %w", config.ErrConfiguration, err)
		}
	}

	model := &config.Model{}
	for _, l := range loaders() {
		m, err := l.Load(ctx, a.config.Paths...)
		if err != nil {
			return err
		}
		model.Merge(m)
	}
	if len(model.Jobs) == 0 {
		return fmt.Errorf("%w: no jobs found in %s", config.ErrConfiguration, strings.Join(a.config.Paths, ", "))
	}
	if err := model.Validate(); err != nil {
		return err
	}
	logger.Debug("Declarations loaded and translated into unified model.", "jobs", len(model.Jobs))

	selected, err := selectJobs(model, a.config.Jobs, a.config.Event)
	if err != nil {
		return err
	}
	if err := a.registry.ValidateRegistry(ctx, selected); err != nil {
		return err
	}
	logger.Debug("Registry validation passed.")

	for _, job := range selected.Jobs {
		if !job.FailFastSet && len(job.Axes) > 0 {
			logger.Warn("Job does not declare fail_fast, every cell will run.", "job", job.Name)
		}
	}
	a.model = selected
	logger.Info("Jobs selected.", "count", len(selected.Jobs), "event", a.config.Event.Kind, "branch", a.config.Event.Branch)
	return nil
}

// selectJobs keeps the named jobs (all when names is empty) whose triggers
// match ev. An unknown name is a configuration error.
func selectJobs(model *config.Model, names []string, ev config.Event) (*config.Model, error) {
	for _, name := range names {
		if model.Job(name) == nil {
			return nil, fmt.Errorf("%w: unknown job '%s'", config.ErrConfiguration, name)
		}
	}
	out := &config.Model{}
	for _, job := range model.Jobs {
		if len(names) > 0 && !slices.Contains(names, job.Name) {
			continue
		}
		if !job.Triggers.Matches(ev) {
			continue
		}
		out.Jobs = append(out.Jobs, job)
	}
	return out, nil
}
