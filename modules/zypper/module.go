// Package zypper registers the recipe for SUSE images.
package zypper

import (
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Recipe installs packages with zypper on openSUSE and SLES.
var Recipe = &registry.Recipe{
	Name: "zypper",
	When: condition.Guard{Any: []condition.Predicate{
		{Field: "os", Op: condition.OpContains, Value: "opensuse"},
		{Field: "os", Op: condition.OpContains, Value: "suse"},
		{Field: "os", Op: condition.OpContains, Value: "sles"},
	}},
	Update:  "zypper --non-interactive refresh",
	Install: "zypper --non-interactive install --no-recommends",
}

// Register registers the recipe with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRecipe(Recipe)
}
