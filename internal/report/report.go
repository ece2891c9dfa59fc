// Package report implements the status report: range/gap computation over
// the three presence sets (source filesystem, configuration store, archive
// store), differential recommendations, and an optional watermark
// cross-check, emitted as structured log records rather than ASCII banners.
package report

import (
	"fmt"
	"sort"
)

func formatRange(tmpl string, count, lo, hi int) string { return fmt.Sprintf(tmpl, count, lo, hi) }
func formatCount(tmpl string, count int) string         { return fmt.Sprintf(tmpl, count) }

// Range is an inclusive span of consecutive run numbers.
type Range struct {
	Start, End int
}

// Summary describes one data source's presence set.
type Summary struct {
	Total  int
	Min    int
	Max    int
	Ranges []Range
	Gaps   []int
}

// Summarize computes ranges and gaps for an unordered set of run numbers.
func Summarize(runs []int) Summary {
	if len(runs) == 0 {
		return Summary{}
	}
	sorted := append([]int(nil), runs...)
	sort.Ints(sorted)

	s := Summary{Total: len(sorted), Min: sorted[0], Max: sorted[len(sorted)-1]}

	present := make(map[int]bool, len(sorted))
	for _, r := range sorted {
		present[r] = true
	}
	for r := s.Min; r <= s.Max; r++ {
		if !present[r] {
			s.Gaps = append(s.Gaps, r)
		}
	}

	rangeStart := sorted[0]
	prev := sorted[0]
	for _, r := range sorted[1:] {
		if r != prev+1 {
			s.Ranges = append(s.Ranges, Range{rangeStart, prev})
			rangeStart = r
		}
		prev = r
	}
	s.Ranges = append(s.Ranges, Range{rangeStart, prev})

	return s
}

// Recommendation is one differential action item.
type Recommendation struct {
	Text     string
	Severity string // "info", "warning"
}

// Recommendations computes the differential between the three presence
// sets: what the import stage still needs to pick up, what the migrate
// stage still needs to pick up, and anything orphaned on either side.
func Recommendations(fsRuns, cfgRuns, archiveRuns []int) []Recommendation {
	fsSet, cfgSet, archiveSet := toSet(fsRuns), toSet(cfgRuns), toSet(archiveRuns)

	var recs []Recommendation

	if toImport := subtract(fsSet, cfgSet); len(toImport) > 0 {
		lo, hi := minMax(toImport)
		recs = append(recs, Recommendation{
			Text:     formatRange("run import: %d run(s) on filesystem not in configuration store (range: %d-%d)", len(toImport), lo, hi),
			Severity: "info",
		})
	}
	if toMigrate := subtract(cfgSet, archiveSet); len(toMigrate) > 0 {
		lo, hi := minMax(toMigrate)
		recs = append(recs, Recommendation{
			Text:     formatRange("run migrate: %d run(s) in configuration store not in archive store (range: %d-%d)", len(toMigrate), lo, hi),
			Severity: "info",
		})
	}
	if orphaned := subtract(cfgSet, fsSet); len(orphaned) > 0 {
		recs = append(recs, Recommendation{
			Text:     formatCount("%d run(s) in configuration store but not on filesystem (may have been deleted)", len(orphaned)),
			Severity: "warning",
		})
	}
	if archiveOnly := subtract(archiveSet, cfgSet); len(archiveOnly) > 0 {
		recs = append(recs, Recommendation{
			Text:     formatCount("%d run(s) in archive store but not in configuration store (may have been cleaned up from intermediate storage)", len(archiveOnly)),
			Severity: "info",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{Text: "all systems are synchronized, no action needed", Severity: "info"})
	}
	return recs
}

// StateComparison is one stage's watermark-vs-reality cross-check.
type StateComparison struct {
	LastContiguousRun int
	MissingDownstream []int // expected <= watermark, absent downstream
	NewSinceWatermark []int // upstream runs beyond the watermark
	FailedRuns        []int
}

// CompareState cross-checks lastContiguous against the actual presence of
// upstream runs in the downstream set.
func CompareState(upstream, downstream []int, lastContiguous int, failedRuns []int) StateComparison {
	c := StateComparison{LastContiguousRun: lastContiguous, FailedRuns: sortedCopy(failedRuns)}
	if lastContiguous <= 0 {
		return c
	}

	downstreamSet := toSet(downstream)
	var expected, newer []int
	for _, r := range upstream {
		if r <= lastContiguous {
			expected = append(expected, r)
		} else {
			newer = append(newer, r)
		}
	}
	for _, r := range expected {
		if !downstreamSet[r] {
			c.MissingDownstream = append(c.MissingDownstream, r)
		}
	}
	sort.Ints(c.MissingDownstream)
	c.NewSinceWatermark = sortedCopy(newer)
	return c
}

func toSet(runs []int) map[int]bool {
	set := make(map[int]bool, len(runs))
	for _, r := range runs {
		set[r] = true
	}
	return set
}

func subtract(a, b map[int]bool) []int {
	var out []int
	for r := range a {
		if !b[r] {
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out
}

func minMax(runs []int) (int, int) {
	lo, hi := runs[0], runs[0]
	for _, r := range runs[1:] {
		if r < lo {
			lo = r
		}
		if r > hi {
			hi = r
		}
	}
	return lo, hi
}

func sortedCopy(runs []int) []int {
	if len(runs) == 0 {
		return nil
	}
	out := append([]int(nil), runs...)
	sort.Ints(out)
	return out
}
