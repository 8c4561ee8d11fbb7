package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/environment"
)

// Module is the interface that all provisioning modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Recipe installs OS packages with one package-manager family. Recipes are
// data: the first one whose guard matches a cell's context is used.
type Recipe struct {
	Name string
	When condition.Guard
	// Update refreshes the package index. Optional.
	Update string
	// Install is the command prefix; the requested packages are appended.
	Install string
	Source  string
}

// Plan is what a toolchain installer wants executed for one cell.
type Plan struct {
	Commands []string
	// Target is the architecture-specific target identifier, e.g. a rust
	// target triple or a GOOS/GOARCH pair.
	Target string
	// Env is exported into the cell's context after installation.
	Env map[string]string
}

// Installer plans the installation of one toolchain kind.
type Installer interface {
	Plan(tc *config.Toolchain, ctx environment.Context) (*Plan, error)
}

// Registry holds the recipes and installers of a single application instance.
type Registry struct {
	recipes    []*Recipe
	installers map[string]Installer
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		installers: make(map[string]Installer),
	}
}

// RegisterRecipe appends a recipe. Recipes are matched in registration order.
func (r *Registry) RegisterRecipe(recipe *Recipe) {
	for _, existing := range r.recipes {
		if existing.Name == recipe.Name {
			panic(fmt.Sprintf("recipe with name '%s' already registered", recipe.Name))
		}
	}
	slog.Debug("Registering recipe.", "name", recipe.Name, "when", recipe.When.String())
	r.recipes = append(r.recipes, recipe)
}

// RegisterInstaller registers the installer of a toolchain kind.
func (r *Registry) RegisterInstaller(kind string, inst Installer) {
	if _, exists := r.installers[kind]; exists {
		panic(fmt.Sprintf("installer for toolchain '%s' already registered", kind))
	}
	slog.Debug("Registering toolchain installer.", "kind", kind)
	r.installers[kind] = inst
}

// Recipes returns the registered recipes in match order.
func (r *Registry) Recipes() []*Recipe {
	return r.recipes
}

// MatchRecipe returns the first recipe whose guard holds for ctx.
func (r *Registry) MatchRecipe(ctx environment.Context) (*Recipe, bool) {
	for _, recipe := range r.recipes {
		if condition.Evaluate(recipe.When, ctx) {
			return recipe, true
		}
	}
	return nil, false
}

// Installer returns the installer registered for a toolchain kind.
func (r *Registry) Installer(kind string) (Installer, bool) {
	inst, ok := r.installers[kind]
	return inst, ok
}

// RegisterModules registers every module with the registry.
func (r *Registry) RegisterModules(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}
