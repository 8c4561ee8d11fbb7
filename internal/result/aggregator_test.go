package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(job string, index int, status CellStatus) Cell {
	return Cell{Job: job, ID: fmt.Sprintf("%s[n=%d]", job, index), Index: index, Status: status}
}

func TestAggregator_AllSuccess(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	agg := NewAggregator()
	agg.BeginJob("build", false, 2)
	agg.BeginJob("lint", false, 1)

	// --- Act ---
	require.NoError(t, agg.Add(cell("lint", 0, CellSuccess)))
	require.NoError(t, agg.Add(cell("build", 1, CellSuccess)))
	require.NoError(t, agg.Add(cell("build", 0, CellSuccess)))
	run := agg.Finalize()

	// --- Assert ---
	_, err := uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, VerdictSuccess, run.Verdict)
	assert.Equal(t, ExitSuccess, run.ExitCode)
	require.Len(t, run.Jobs, 2)
	assert.Equal(t, "build", run.Jobs[0].Name, "jobs keep declaration order")
	assert.Equal(t, 0, run.Jobs[0].Cells[0].Index, "cells are ordered by index")
	assert.Equal(t, 3, run.Cells())
}

func TestAggregator_DeclaredOrderSurvivesConcurrentBegin(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	agg := NewAggregator()
	agg.DeclareJobs("lint", "test", "docs")

	// --- Act ---
	var wg sync.WaitGroup
	for _, name := range []string{"docs", "test", "lint", "extra"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			agg.BeginJob(name, false, 1)
			assert.NoError(t, agg.Add(cell(name, 0, CellSuccess)))
		}(name)
	}
	wg.Wait()
	run := agg.Finalize()

	// --- Assert ---
	require.Len(t, run.Jobs, 4)
	assert.Equal(t, "lint", run.Jobs[0].Name)
	assert.Equal(t, "test", run.Jobs[1].Name)
	assert.Equal(t, "docs", run.Jobs[2].Name)
	assert.Equal(t, "extra", run.Jobs[3].Name)
}

func TestAggregator_AnyNonSuccessFailsRun(t *testing.T) {
	t.Parallel()

	for _, status := range []CellStatus{CellStepFailed, CellProvisioningFailed, CellCancelled} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			agg := NewAggregator()
			agg.BeginJob("a", false, 1)
			agg.BeginJob("b", false, 2)
			require.NoError(t, agg.Add(cell("a", 0, CellSuccess)))
			require.NoError(t, agg.Add(cell("b", 0, CellSuccess)))
			require.NoError(t, agg.Add(cell("b", 1, status)))

			run := agg.Finalize()

			assert.Equal(t, VerdictFailure, run.Verdict)
			assert.Equal(t, ExitFailure, run.ExitCode)
			assert.Equal(t, VerdictSuccess, run.Jobs[0].Verdict, "sibling job is unaffected")
			assert.Equal(t, VerdictFailure, run.Jobs[1].Verdict)
			assert.Equal(t, 1, run.NotPassed())
		})
	}
}

func TestAggregator_MissingCellsFailJob(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.BeginJob("build", true, 3)
	require.NoError(t, agg.Add(cell("build", 0, CellSuccess)))

	run := agg.Finalize()

	assert.Equal(t, VerdictFailure, run.Verdict)
}

func TestAggregator_RecordsOnce(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	require.NoError(t, agg.Add(cell("build", 0, CellSuccess)))

	err := agg.Add(cell("build", 0, CellStepFailed))
	assert.ErrorIs(t, err, ErrDuplicateCell)

	run := agg.Finalize()
	assert.Equal(t, CellSuccess, run.Jobs[0].Cells[0].Status)
	assert.ErrorIs(t, agg.Add(cell("build", 1, CellSuccess)), ErrFinalized)
}

func TestAggregator_ConcurrentAdds(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.BeginJob("build", false, 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, agg.Add(cell("build", i, CellSuccess)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, agg.Snapshot(), 50)
	run := agg.Finalize()
	assert.Equal(t, 50, run.Jobs[0].Passed)
	assert.Equal(t, VerdictSuccess, run.Verdict)
}

func TestRender(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	agg := NewAggregator()
	agg.BeginJob("test", false, 2)
	require.NoError(t, agg.Add(cell("test", 0, CellSuccess)))
	failed := cell("test", 1, CellStepFailed)
	failed.FailedStep = "cargo test"
	failed.ExitCode = 101
	failed.Cache = &CacheOutcome{Key: "k", Restore: "miss"}
	require.NoError(t, agg.Add(failed))
	run := agg.Finalize()

	// --- Act ---
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, run))

	// --- Assert ---
	out := buf.String()
	assert.Contains(t, out, run.ID)
	assert.Contains(t, out, "test[n=0]")
	assert.Contains(t, out, `step "cargo test" exit 101`)
	assert.Contains(t, out, "cache=miss")
	assert.Contains(t, out, "FAILURE: 1 of 2 cells did not pass")
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	require.NoError(t, agg.Add(cell("lint", 0, CellSuccess)))
	run := agg.Finalize()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, run))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "success", decoded["verdict"])
	assert.Equal(t, run.ID, decoded["id"])
}
