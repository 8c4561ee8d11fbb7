// Package dnf registers the recipe for Fedora and Enterprise Linux images.
package dnf

import (
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var Recipe = &registry.Recipe{
	Name: "dnf",
	When: condition.Guard{Any: []condition.Predicate{
		{Field: "os", Op: condition.OpContains, Value: "fedora"},
		{Field: "os", Op: condition.OpContains, Value: "rockylinux"},
		{Field: "os", Op: condition.OpContains, Value: "almalinux"},
		{Field: "os", Op: condition.OpContains, Value: "centos"},
	}},
	Install: "dnf install -y --setopt=install_weak_deps=False",
}

// Register registers the recipe with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRecipe(Recipe)
}
