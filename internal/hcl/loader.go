package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/fsutil"
)

// Extension is the file extension of HCL job declarations.
const Extension = ".hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under the given paths and merges all of
// their job blocks into a single model. Paths that do not exist are ignored.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFilesByExtension(paths, Extension)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	model := &config.Model{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: failed to parse HCL file %s: %w", config.ErrConfiguration, file, diags)
		}
		m, err := l.decode(ctx, file, hclFile.Body)
		if err != nil {
			return nil, err
		}
		model.Merge(m)
	}

	logger.Debug("HCL loading complete.", "jobs", len(model.Jobs))
	return model, nil
}

// Parse decodes a single in-memory declaration. filename is used in
// diagnostics only.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*config.Model, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse HCL file %s: %w", config.ErrConfiguration, filename, diags)
	}
	return l.decode(ctx, filename, hclFile.Body)
}

func (l *Loader) decode(ctx context.Context, file string, body hcl.Body) (*config.Model, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode HCL file %s: %w", config.ErrConfiguration, file, diags)
	}

	model := &config.Model{}
	for _, jb := range root.Jobs {
		job, err := l.translateJob(ctx, file, jb)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: job '%s': %w", config.ErrConfiguration, file, jb.Name, err)
		}
		model.Jobs = append(model.Jobs, job)
	}
	return model, nil
}
