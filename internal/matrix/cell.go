package matrix

import (
	"sort"
	"strings"
)

// Axis is a single named matrix dimension with its discrete values.
type Axis struct {
	Name   string
	Values []string
}

// Pair is one axis assignment inside a cell.
type Pair struct {
	Axis  string
	Value string
}

// Cell is one concrete combination of axis values. Cells are created once per
// run and never mutated afterwards.
type Cell struct {
	Job   string
	Index int
	Pairs []Pair
}

// ID returns a stable, human-readable identity such as
// "test[runtime=ubuntu-22.04,container=ubuntu:22.04]". A cell without pairs is
// identified by its job name alone.
func (c Cell) ID() string {
	if len(c.Pairs) == 0 {
		return c.Job
	}
	parts := make([]string, len(c.Pairs))
	for i, p := range c.Pairs {
		parts[i] = p.Axis + "=" + p.Value
	}
	return c.Job + "[" + strings.Join(parts, ",") + "]"
}

// Value returns the value assigned to axis in this cell.
func (c Cell) Value(axis string) (string, bool) {
	for _, p := range c.Pairs {
		if p.Axis == axis {
			return p.Value, true
		}
	}
	return "", false
}

// Values returns a copy of the cell's assignments as a map.
func (c Cell) Values() map[string]string {
	out := make(map[string]string, len(c.Pairs))
	for _, p := range c.Pairs {
		out[p.Axis] = p.Value
	}
	return out
}

// signature is an order-independent fingerprint of the cell's pairs, used to
// deduplicate included combinations.
func (c Cell) signature() string {
	parts := make([]string, len(c.Pairs))
	for i, p := range c.Pairs {
		parts[i] = p.Axis + "\x00" + p.Value
	}
	sort.Strings(parts)
	return strings.Join(parts, "\x01")
}
