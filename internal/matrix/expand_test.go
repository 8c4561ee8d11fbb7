package matrix

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_TwoByTwoScenario(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	axes := []Axis{
		{Name: "runtime", Values: []string{"A", "B"}},
		{Name: "container", Values: []string{"X", "Y"}},
	}

	// --- Act ---
	cells, err := Expand("test", axes, nil, nil)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, cells, 4)
	var ids []string
	for i, c := range cells {
		assert.Equal(t, i, c.Index)
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{
		"test[runtime=A,container=X]",
		"test[runtime=A,container=Y]",
		"test[runtime=B,container=X]",
		"test[runtime=B,container=Y]",
	}, ids)
}

func TestExpand_CountIsProductOfAxisSizes(t *testing.T) {
	t.Parallel()

	sizes := [][]int{{1}, {3}, {2, 2}, {3, 1, 4}, {2, 3, 2, 2}}
	for _, dims := range sizes {
		dims := dims
		t.Run(fmt.Sprint(dims), func(t *testing.T) {
			t.Parallel()

			var axes []Axis
			want := 1
			for i, n := range dims {
				a := Axis{Name: fmt.Sprintf("a%d", i)}
				for v := 0; v < n; v++ {
					a.Values = append(a.Values, fmt.Sprintf("v%d", v))
				}
				axes = append(axes, a)
				want *= n
			}

			cells, err := Expand("job", axes, nil, nil)
			require.NoError(t, err)
			require.Len(t, cells, want)

			seen := make(map[string]struct{})
			for _, c := range cells {
				_, dup := seen[c.ID()]
				assert.False(t, dup, "combination %s appeared twice", c.ID())
				seen[c.ID()] = struct{}{}
				assert.Len(t, c.Pairs, len(dims))
			}
		})
	}
}

func TestExpand_NoAxesYieldsSingleCell(t *testing.T) {
	t.Parallel()

	cells, err := Expand("lint", nil, nil, nil)

	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, "lint", cells[0].ID())
	assert.Empty(t, cells[0].Values())
}

func TestExpand_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		axes    []Axis
		exclude []map[string]string
	}{
		"empty axis": {
			axes: []Axis{{Name: "runtime", Values: nil}},
		},
		"duplicate axis": {
			axes: []Axis{{Name: "os", Values: []string{"a"}}, {Name: "os", Values: []string{"b"}}},
		},
		"duplicate value": {
			axes: []Axis{{Name: "os", Values: []string{"a", "a"}}},
		},
		"unnamed axis": {
			axes: []Axis{{Values: []string{"a"}}},
		},
		"exclude unknown axis": {
			axes:    []Axis{{Name: "os", Values: []string{"a"}}},
			exclude: []map[string]string{{"arch": "x"}},
		},
		"everything excluded": {
			axes:    []Axis{{Name: "os", Values: []string{"a"}}},
			exclude: []map[string]string{{"os": "a"}},
		},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cells, err := Expand("job", tc.axes, nil, tc.exclude)
			require.ErrorIs(t, err, ErrInvalidMatrix)
			assert.Nil(t, cells)
		})
	}
}

func TestExpand_ExcludeAndInclude(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	axes := []Axis{
		{Name: "runtime", Values: []string{"A", "B"}},
		{Name: "container", Values: []string{"X", "Y"}},
	}
	exclude := []map[string]string{{"runtime": "B", "container": "Y"}}
	include := []map[string]string{
		{"runtime": "A", "container": "X"}, // already present
		{"runtime": "C", "container": "Z", "flavor": "nightly"},
	}

	// --- Act ---
	cells, err := Expand("test", axes, include, exclude)

	// --- Assert ---
	require.NoError(t, err)
	var ids []string
	for _, c := range cells {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{
		"test[runtime=A,container=X]",
		"test[runtime=A,container=Y]",
		"test[runtime=B,container=X]",
		"test[runtime=C,container=Z,flavor=nightly]",
	}, ids)
	assert.Equal(t, 3, cells[3].Index)
}

func TestCell_Value(t *testing.T) {
	t.Parallel()

	c := Cell{Job: "j", Pairs: []Pair{{Axis: "os", Value: "linux"}}}

	v, ok := c.Value("os")
	assert.True(t, ok)
	assert.Equal(t, "linux", v)

	_, ok = c.Value("arch")
	assert.False(t, ok)
}
