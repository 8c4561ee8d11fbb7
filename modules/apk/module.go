// Package apk registers the recipe for Alpine images.
package apk

import (
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Recipe = &registry.Recipe{
	Name:    "apk",
	When:    condition.Guard{All: []condition.Predicate{{Field: "os", Op: condition.OpContains, Value: "alpine"}}},
	Install: "apk add --no-cache",
}

// Register registers the recipe with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRecipe(Recipe)
}
