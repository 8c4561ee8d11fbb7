// Package yamlconfig loads job declarations written in YAML.
//
// The YAML format mirrors the HCL one with workflow-style spelling: matrix
// axes live under strategy.matrix (in declaration order), `continue-on-error`
// selects the best-effort policy and run commands interpolate context values
// with `${{ expr }}`, where expr is an HCL expression over env, matrix, arch,
// container, runtime, os, job and cell.
package yamlconfig
