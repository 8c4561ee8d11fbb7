package app

import (
	"github.com/vk/matrixgrid/internal/registry"
	"github.com/vk/matrixgrid/modules/apk"
	"github.com/vk/matrixgrid/modules/apt"
	"github.com/vk/matrixgrid/modules/dnf"
	"github.com/vk/matrixgrid/modules/golang"
	"github.com/vk/matrixgrid/modules/rustup"
	"github.com/vk/matrixgrid/modules/zypper"
)

// coreModules is the definitive list of all recipes and installers compiled
// into the matrixgrid binary. Recipe order is match order.
var coreModules = []registry.Module{
	&apt.Module{},
	&zypper.Module{},
	&dnf.Module{},
	&apk.Module{},
	&rustup.Module{},
	&golang.Module{},
}
