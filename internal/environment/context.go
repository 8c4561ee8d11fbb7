package environment

import (
	"maps"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Well-known variables injected into every cell.
const (
	ArchEnvKey      = "CI_ARCH"
	RuntimeEnvKey   = "CI_RUNTIME"
	ContainerEnvKey = "CI_CONTAINER"
	OSEnvKey        = "CI_OS"
	JobEnvKey       = "CI_JOB"
	CellEnvKey      = "CI_CELL"
	MatrixEnvPrefix = "MATRIX_"
)

// Context is the resolved, read-only execution context of one cell.
type Context struct {
	job       string
	cellID    string
	arch      string
	runtime   string
	container string
	osID      string
	matrix    map[string]string
	env       map[string]string
}

func (c Context) Job() string       { return c.job }
func (c Context) CellID() string    { return c.cellID }
func (c Context) Arch() string      { return c.arch }
func (c Context) Runtime() string   { return c.runtime }
func (c Context) Container() string { return c.container }

// OS is the operating system identity used for cache scoping: the container
// image when the cell runs in one, the runtime label otherwise.
func (c Context) OS() string { return c.osID }

// Lookup returns an environment variable of the context.
func (c Context) Lookup(name string) (string, bool) {
	v, ok := c.env[name]
	return v, ok
}

// MatrixValue returns the cell's value for a matrix axis.
func (c Context) MatrixValue(axis string) (string, bool) {
	v, ok := c.matrix[axis]
	return v, ok
}

// Env returns a copy of the environment variable mapping.
func (c Context) Env() map[string]string {
	return maps.Clone(c.env)
}

// Matrix returns a copy of the cell's axis assignments.
func (c Context) Matrix() map[string]string {
	return maps.Clone(c.matrix)
}

// Environ returns the variables as sorted KEY=VALUE strings, suitable for
// exec.Cmd.Env.
func (c Context) Environ() []string {
	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + c.env[k]
	}
	return out
}

// With returns a copy of the context with one variable set.
func (c Context) With(key, value string) Context {
	return c.Merge(map[string]string{key: value})
}

// Merge returns a copy of the context with vars layered over its variables.
func (c Context) Merge(vars map[string]string) Context {
	if len(vars) == 0 {
		return c
	}
	next := c
	next.env = maps.Clone(c.env)
	if next.env == nil {
		next.env = make(map[string]string, len(vars))
	}
	for k, v := range vars {
		next.env[k] = v
	}
	return next
}

// Field resolves a named context field for guard evaluation. Supported names
// are arch, container, runtime, os, job, cell, matrix.<axis> and env.<NAME>.
func (c Context) Field(name string) (string, bool) {
	switch name {
	case "arch":
		return c.arch, c.arch != ""
	case "container":
		return c.container, c.container != ""
	case "runtime":
		return c.runtime, c.runtime != ""
	case "os":
		return c.osID, c.osID != ""
	case "job":
		return c.job, c.job != ""
	case "cell":
		return c.cellID, c.cellID != ""
	}
	if axis, ok := strings.CutPrefix(name, "matrix."); ok {
		return c.MatrixValue(axis)
	}
	if key, ok := strings.CutPrefix(name, "env."); ok {
		return c.Lookup(key)
	}
	return "", false
}

// EvalContext exposes the context to HCL templates: env, matrix, arch,
// container, runtime, os, job and cell.
func (c Context) EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env":       stringMap(c.env),
			"matrix":    stringMap(c.matrix),
			"arch":      cty.StringVal(c.arch),
			"container": cty.StringVal(c.container),
			"runtime":   cty.StringVal(c.runtime),
			"os":        cty.StringVal(c.osID),
			"job":       cty.StringVal(c.job),
			"cell":      cty.StringVal(c.cellID),
		},
	}
}

func stringMap(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.MapVal(vals)
}
