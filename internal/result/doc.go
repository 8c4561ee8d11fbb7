// Package result collects the outcome of every cell of a run and decides the
// run's verdict.
//
// Cell results arrive concurrently from the workers of all jobs. Each is
// recorded exactly once; Finalize then groups them by job in declaration
// order and computes the verdict: the run fails iff at least one cell did not
// succeed.
package result
