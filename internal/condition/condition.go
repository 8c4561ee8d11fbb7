package condition

import (
	"errors"
	"fmt"
	"strings"
)

// Op is a predicate operator.
type Op string

const (
	OpEquals      Op = "equals"
	OpNotEquals   Op = "not_equals"
	OpContains    Op = "contains"
	OpNotContains Op = "not_contains"
	OpPrefix      Op = "prefix"
	OpSuffix      Op = "suffix"
)

// ErrMalformed is returned for predicates that cannot be evaluated.
var ErrMalformed = errors.New("malformed guard")

// ParseOp accepts the operator names and their symbolic aliases.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equals", "eq", "==":
		return OpEquals, nil
	case "not_equals", "ne", "!=":
		return OpNotEquals, nil
	case "contains":
		return OpContains, nil
	case "not_contains", "!contains":
		return OpNotContains, nil
	case "prefix", "starts_with":
		return OpPrefix, nil
	case "suffix", "ends_with":
		return OpSuffix, nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", ErrMalformed, s)
}

// Predicate is one field/operator/literal test.
type Predicate struct {
	Field string
	Op    Op
	Value string
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %q", p.Field, p.Op, p.Value)
}

// Validate reports whether the predicate is well formed. Only well-formed
// predicates reach Evaluate; loaders call Validate.
func (p Predicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("%w: predicate without field", ErrMalformed)
	}
	if _, err := ParseOp(string(p.Op)); err != nil {
		return err
	}
	return nil
}

// Guard gates a step or recipe. All predicates must hold, and when Any is
// non-empty at least one of its predicates must hold too. The zero Guard is
// always true.
type Guard struct {
	All []Predicate
	Any []Predicate
}

// IsZero reports whether the guard has no predicates.
func (g Guard) IsZero() bool {
	return len(g.All) == 0 && len(g.Any) == 0
}

// Validate checks every predicate of the guard.
func (g Guard) Validate() error {
	for _, p := range g.All {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, p := range g.Any {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (g Guard) String() string {
	var parts []string
	for _, p := range g.All {
		parts = append(parts, p.String())
	}
	if len(g.Any) > 0 {
		var alts []string
		for _, p := range g.Any {
			alts = append(alts, p.String())
		}
		parts = append(parts, "("+strings.Join(alts, " || ")+")")
	}
	if len(parts) == 0 {
		return "always"
	}
	return strings.Join(parts, " && ")
}

// Fields is the view of an execution context a guard is evaluated against.
type Fields interface {
	Field(name string) (string, bool)
}

// Evaluate reports whether the guard holds for the given context.
func Evaluate(g Guard, ctx Fields) bool {
	for _, p := range g.All {
		if !evalPredicate(p, ctx) {
			return false
		}
	}
	if len(g.Any) == 0 {
		return true
	}
	for _, p := range g.Any {
		if evalPredicate(p, ctx) {
			return true
		}
	}
	return false
}

func evalPredicate(p Predicate, ctx Fields) bool {
	got, ok := ctx.Field(p.Field)
	if !ok {
		return false
	}
	op, err := ParseOp(string(p.Op))
	if err != nil {
		return false
	}
	switch op {
	case OpEquals:
		return got == p.Value
	case OpNotEquals:
		return got != p.Value
	case OpContains:
		return strings.Contains(got, p.Value)
	case OpNotContains:
		return !strings.Contains(got, p.Value)
	case OpPrefix:
		return strings.HasPrefix(got, p.Value)
	case OpSuffix:
		return strings.HasSuffix(got, p.Value)
	}
	return false
}
