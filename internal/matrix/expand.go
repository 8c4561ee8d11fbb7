package matrix

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidMatrix is returned for malformed matrix declarations. Callers
// treat it as a configuration error that aborts the run before any cell
// starts.
var ErrInvalidMatrix = errors.New("invalid matrix")

// Expand computes the cross product of axes for the named job, removes the
// combinations matched by exclude and appends the combinations listed in
// include. Without axes the job is a degenerate single-cell job.
func Expand(job string, axes []Axis, include, exclude []map[string]string) ([]Cell, error) {
	if err := validateAxes(axes); err != nil {
		return nil, fmt.Errorf("job '%s': %w", job, err)
	}
	known := make(map[string]struct{}, len(axes))
	for _, a := range axes {
		known[a.Name] = struct{}{}
	}
	for i, ex := range exclude {
		if len(ex) == 0 {
			return nil, fmt.Errorf("job '%s': %w: exclude entry %d is empty", job, ErrInvalidMatrix, i)
		}
		for name := range ex {
			if _, ok := known[name]; !ok {
				return nil, fmt.Errorf("job '%s': %w: exclude entry %d references unknown axis '%s'", job, ErrInvalidMatrix, i, name)
			}
		}
	}

	var cells []Cell
	seen := make(map[string]struct{})
	for _, pairs := range product(axes) {
		cell := Cell{Job: job, Pairs: pairs}
		if excluded(cell, exclude) {
			continue
		}
		seen[cell.signature()] = struct{}{}
		cells = append(cells, cell)
	}

	for i, inc := range include {
		if len(inc) == 0 {
			return nil, fmt.Errorf("job '%s': %w: include entry %d is empty", job, ErrInvalidMatrix, i)
		}
		cell := Cell{Job: job, Pairs: includePairs(axes, inc)}
		sig := cell.signature()
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		cells = append(cells, cell)
	}

	if len(cells) == 0 {
		return nil, fmt.Errorf("job '%s': %w: every combination is excluded", job, ErrInvalidMatrix)
	}
	for i := range cells {
		cells[i].Index = i
	}
	return cells, nil
}

func validateAxes(axes []Axis) error {
	names := make(map[string]struct{}, len(axes))
	for _, a := range axes {
		if a.Name == "" {
			return fmt.Errorf("%w: axis with empty name", ErrInvalidMatrix)
		}
		if _, dup := names[a.Name]; dup {
			return fmt.Errorf("%w: axis '%s' declared twice", ErrInvalidMatrix, a.Name)
		}
		names[a.Name] = struct{}{}
		if len(a.Values) == 0 {
			return fmt.Errorf("%w: axis '%s' has no values", ErrInvalidMatrix, a.Name)
		}
		values := make(map[string]struct{}, len(a.Values))
		for _, v := range a.Values {
			if _, dup := values[v]; dup {
				return fmt.Errorf("%w: axis '%s' lists value '%s' twice", ErrInvalidMatrix, a.Name, v)
			}
			values[v] = struct{}{}
		}
	}
	return nil
}

// product enumerates the cross product with the first axis varying slowest.
func product(axes []Axis) [][]Pair {
	total := 1
	for _, a := range axes {
		total *= len(a.Values)
	}
	out := make([][]Pair, 0, total)
	idx := make([]int, len(axes))
	for n := 0; n < total; n++ {
		pairs := make([]Pair, len(axes))
		for i, a := range axes {
			pairs[i] = Pair{Axis: a.Name, Value: a.Values[idx[i]]}
		}
		out = append(out, pairs)

		for i := len(axes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func excluded(cell Cell, exclude []map[string]string) bool {
	for _, ex := range exclude {
		match := true
		for name, want := range ex {
			if got, ok := cell.Value(name); !ok || got != want {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// includePairs orders an include entry: declared axes first in axis order,
// then any extra keys alphabetically.
func includePairs(axes []Axis, inc map[string]string) []Pair {
	pairs := make([]Pair, 0, len(inc))
	used := make(map[string]struct{}, len(inc))
	for _, a := range axes {
		if v, ok := inc[a.Name]; ok {
			pairs = append(pairs, Pair{Axis: a.Name, Value: v})
			used[a.Name] = struct{}{}
		}
	}
	var extra []string
	for name := range inc {
		if _, ok := used[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		pairs = append(pairs, Pair{Axis: name, Value: inc[name]})
	}
	return pairs
}
