// Package step runs the ordered steps of one matrix cell.
//
// Steps run sequentially against an immutable environment.Context. A step
// may export variables for later steps by writing KEY=VALUE lines to the file
// named by $CI_ENV; the executor parses that file after the step succeeds and
// threads a new context into the next step. Commands are executed by a
// Runner: on the host through `sh -c`, or inside a container through the
// container engine CLI.
package step
