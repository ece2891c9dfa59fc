package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fnal-sbnd/rrarchiver/internal/state"
)

func TestRecompute_NumericExample(t *testing.T) {
	// destination attempted up through 108 with a gap at 104, matching
	// the documented recovery scenario: contiguous=103, attempted=108,
	// failure-log=[104].
	destination := []int{100, 101, 102, 103, 105, 106, 107, 108}
	source := []int{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}

	result := Recompute(source, destination)
	assert.Equal(t, 103, result.LastContiguousRun)
	assert.Equal(t, 108, result.LastAttemptedRun)
	assert.Equal(t, []int{104}, result.Missing)
}

func TestRecompute_RunsBeyondWatermarkAreNotMissing(t *testing.T) {
	destination := []int{100, 101}
	source := []int{100, 101, 200}

	result := Recompute(source, destination)
	assert.Empty(t, result.Missing)
	assert.Equal(t, 101, result.LastAttemptedRun)
}

func TestRecompute_EmptyDestination_NothingAttempted(t *testing.T) {
	result := Recompute([]int{100, 101}, nil)
	assert.Equal(t, 0, result.LastAttemptedRun)
	assert.Equal(t, 0, result.LastContiguousRun)
	assert.Empty(t, result.Missing)
}

func TestRecompute_NoGaps_EmptyMissing(t *testing.T) {
	result := Recompute([]int{100, 101, 102}, []int{100, 101, 102})
	assert.Equal(t, 102, result.LastContiguousRun)
	assert.Empty(t, result.Missing)
}

type fakeSource struct{ runs []int }

func (f fakeSource) ListSourceRuns(ctx context.Context) ([]int, error) { return f.runs, nil }

type fakeDest struct{ runs []int }

func (f fakeDest) ListDestinationRuns(ctx context.Context) ([]int, error) { return f.runs, nil }

func TestRun_AppliesResultToDisk(t *testing.T) {
	dir := t.TempDir()
	statePath := dir + "/state.json"
	failurePath := dir + "/failures.log"

	src := fakeSource{runs: []int{100, 101, 102, 103, 104}}
	dst := fakeDest{runs: []int{100, 101, 102, 104}}

	result, err := Run(context.Background(), src, dst, statePath, failurePath)
	require.NoError(t, err)
	assert.Equal(t, []int{103}, result.Missing)

	w := state.ReadState(statePath)
	assert.Equal(t, 102, w.LastContiguousRun)
	assert.Equal(t, 104, w.LastAttemptedRun)
	assert.Equal(t, []int{103}, state.ParseFailureLog(failurePath))
}
