package config

import "context"

// Loader is the interface for a format-specific declaration loader.
type Loader interface {
	// Load reads every declaration file of its format found under the given
	// paths and translates them into the format-agnostic model. Paths that
	// do not exist or hold no files of the loader's format are ignored.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
