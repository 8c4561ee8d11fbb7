package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
)

// ValidateRegistry checks the registered recipes and that every toolchain
// requested by the model has an installer.
func (r *Registry) ValidateRegistry(ctx context.Context, model *config.Model) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, recipe := range r.recipes {
		if recipe.When.IsZero() {
			errs = append(errs, fmt.Sprintf("recipe '%s': guard is empty and would match every context", recipe.Name))
		}
		if err := recipe.When.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("recipe '%s': %v", recipe.Name, err))
		}
		if strings.TrimSpace(recipe.Install) == "" {
			errs = append(errs, fmt.Sprintf("recipe '%s': install command is empty", recipe.Name))
		}
	}

	if model != nil {
		for _, job := range model.Jobs {
			if job.Provision == nil {
				continue
			}
			for _, tc := range job.Provision.Toolchains {
				if _, ok := r.installers[tc.Kind]; !ok {
					errs = append(errs, fmt.Sprintf("job '%s': no installer registered for toolchain '%s'", job.Name, tc.Kind))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: registry validation failed:\n- %s", config.ErrConfiguration, strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validated.", "recipes", len(r.recipes), "installers", len(r.installers))
	return nil
}
