// Package condition evaluates guard predicates against an execution context.
//
// A guard is data, not code: a closed set of predicates, each a field, an
// operator and a literal. Evaluation is total and side-effect free. A
// predicate over a field the context does not know evaluates to false instead
// of failing, so provisioning stays robust when the context is only partially
// populated.
package condition
