package registry

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/matrixgrid/internal/condition"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/fsutil"
)

type recipeFile struct {
	Recipes []*recipeBlock `hcl:"recipe,block"`
}

type recipeBlock struct {
	Name      string `hcl:"name,label"`
	Condition string `hcl:"condition"`
	Update    string `hcl:"update,optional"`
	Install   string `hcl:"install"`
}

// LoadRecipesRecursively registers every `recipe` block found in .hcl files
// under path, after the built-in recipes:
//
//	recipe "pacman" {
//	  condition = "os contains 'archlinux'"
//	  update    = "pacman -Sy"
//	  install   = "pacman -S --noconfirm"
//	}
func (r *Registry) LoadRecipesRecursively(ctx context.Context, path string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading recipes from path...", "path", path)

	filePaths, err := fsutil.FindFilesByExtension([]string{path}, ".hcl")
	if err != nil {
		logger.Error("Failed to walk recipes directory", "path", path, "error", err)
		return err
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl recipe files found in path", "path", path)
		return nil
	}

	parser := hclparse.NewParser()
	loaded := 0
	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
		}
		var file recipeFile
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &file); diags.HasErrors() {
			return fmt.Errorf("failed to decode recipes in %s: %w", filePath, diags)
		}
		for _, b := range file.Recipes {
			guard, err := condition.Parse(b.Condition)
			if err != nil {
				return fmt.Errorf("recipe '%s' in %s: %w", b.Name, filePath, err)
			}
			r.RegisterRecipe(&Recipe{
				Name:    b.Name,
				When:    guard,
				Update:  b.Update,
				Install: b.Install,
				Source:  filePath,
			})
			loaded++
		}
		logger.Debug("Successfully loaded recipes from HCL file", "file", filePath)
	}

	logger.Info("Recipes loaded successfully.", "recipes_loaded", loaded)
	return nil
}
