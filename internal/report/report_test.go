package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NoGaps_SingleRange(t *testing.T) {
	s := Summarize([]int{100, 101, 102, 103})
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 100, s.Min)
	assert.Equal(t, 103, s.Max)
	assert.Empty(t, s.Gaps)
	assert.Equal(t, []Range{{100, 103}}, s.Ranges)
}

func TestSummarize_WithGaps_MultipleRanges(t *testing.T) {
	s := Summarize([]int{100, 101, 103, 104, 108})
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 100, s.Min)
	assert.Equal(t, 108, s.Max)
	assert.Equal(t, []int{102, 105, 106, 107}, s.Gaps)
	assert.Equal(t, []Range{{100, 101}, {103, 104}, {108, 108}}, s.Ranges)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, Summary{}, s)
}

func TestSummarize_UnsortedInput(t *testing.T) {
	s := Summarize([]int{103, 100, 101})
	assert.Equal(t, []Range{{100, 101}, {103, 103}}, s.Ranges)
}

func TestRecommendations_AllSynchronized(t *testing.T) {
	recs := Recommendations([]int{100, 101}, []int{100, 101}, []int{100, 101})
	assert.Len(t, recs, 1)
	assert.Equal(t, "all systems are synchronized, no action needed", recs[0].Text)
}

func TestRecommendations_RunImportNeeded(t *testing.T) {
	recs := Recommendations([]int{100, 101, 102}, []int{100}, []int{100})
	assert.Contains(t, recs[0].Text, "run import: 2 run(s)")
	assert.Contains(t, recs[0].Text, "range: 101-102")
	assert.Equal(t, "info", recs[0].Severity)
}

func TestRecommendations_RunMigrateNeeded(t *testing.T) {
	recs := Recommendations([]int{100}, []int{100, 101, 102}, []int{100})
	var found bool
	for _, r := range recs {
		if r.Severity == "info" && r.Text == "run migrate: 2 run(s) in configuration store not in archive store (range: 101-102)" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecommendations_OrphanedInConfigStore_Warns(t *testing.T) {
	recs := Recommendations([]int{100}, []int{100, 101}, []int{100, 101})
	var found bool
	for _, r := range recs {
		if r.Severity == "warning" && r.Text == "1 run(s) in configuration store but not on filesystem (may have been deleted)" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecommendations_ArchiveOnly_Info(t *testing.T) {
	recs := Recommendations([]int{100}, []int{100}, []int{100, 101})
	var found bool
	for _, r := range recs {
		if r.Severity == "info" && r.Text == "1 run(s) in archive store but not in configuration store (may have been cleaned up from intermediate storage)" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompareState_ZeroWatermark_NoChecks(t *testing.T) {
	c := CompareState([]int{100, 101}, nil, 0, nil)
	assert.Equal(t, 0, c.LastContiguousRun)
	assert.Empty(t, c.MissingDownstream)
	assert.Empty(t, c.NewSinceWatermark)
}

func TestCompareState_MissingDownstream(t *testing.T) {
	c := CompareState([]int{100, 101, 102}, []int{100, 102}, 102, nil)
	assert.Equal(t, []int{101}, c.MissingDownstream)
}

func TestCompareState_NewSinceWatermark(t *testing.T) {
	c := CompareState([]int{100, 101, 102, 103}, []int{100, 101}, 101, nil)
	assert.Empty(t, c.MissingDownstream)
	assert.Equal(t, []int{102, 103}, c.NewSinceWatermark)
}

func TestCompareState_FailedRunsPassedThrough(t *testing.T) {
	c := CompareState([]int{100}, []int{100}, 100, []int{50, 40})
	assert.Equal(t, []int{40, 50}, c.FailedRuns)
}
