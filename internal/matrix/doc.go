// Package matrix expands a job's matrix axes into the independent cells that
// the executor dispatches.
//
// Enumeration is deterministic: the first axis varies slowest, so the cells of
// {runtime: [A, B], container: [X, Y]} come out as (A,X), (A,Y), (B,X), (B,Y).
// The order is only used for stable logging and reporting; cells may execute
// in any order.
package matrix
