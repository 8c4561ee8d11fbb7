// Package config defines the format-agnostic job declaration model, along
// with the Loader interface implemented by the concrete declaration formats.
//
// The `config.Model` is the single source of truth for the `executor`
// package. Concrete loaders for HCL and YAML live in separate packages and
// translate their file schemas into this model.
package config
