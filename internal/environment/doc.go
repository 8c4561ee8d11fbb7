// Package environment turns a matrix cell into the read-only execution
// context every later stage of the cell consumes.
//
// Resolution is pure: it never touches the network or the filesystem, and the
// same cell always resolves to the same Context. A Context is never mutated;
// With and Merge return a new value, which is how provisioning and exporting
// steps hand variables to the steps that follow them.
package environment
