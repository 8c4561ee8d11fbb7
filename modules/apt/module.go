// Package apt registers the recipe for Debian-family images.
package apt

import (
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Recipe installs packages with apt-get on Debian and Ubuntu.
var Recipe = &registry.Recipe{
	Name: "apt",
	When: condition.Guard{Any: []condition.Predicate{
		{Field: "os", Op: condition.OpContains, Value: "ubuntu"},
		{Field: "os", Op: condition.OpContains, Value: "debian"},
	}},
	Update:  "apt-get update -qq",
	Install: "DEBIAN_FRONTEND=noninteractive apt-get install -y --no-install-recommends",
}

// Register registers the recipe with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRecipe(Recipe)
}
