// Package recovery implements the recover-import-state and
// recover-migrate-state modes: rebuilding a stage's watermark and failure
// log from the actual contents of its two collaborating stores, for use
// after state corruption or a skipped run that was never recorded.
package recovery

import (
	"context"
	"sort"

	"github.com/fnal-sbnd/rrarchiver/internal/state"
	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

// Result summarizes a recovery pass.
type Result struct {
	LastAttemptedRun  int
	LastContiguousRun int
	Missing           []int
}

// Recompute derives a Result from source (the upstream presence set, e.g.
// filesystem runs for import or configuration-store runs for migrate) and
// destination (the downstream presence set the stage writes to).
//
// last_attempted is the maximum destination run; last_contiguous is the
// longest run of consecutive integers present in destination starting at
// its minimum. missing is every source run not in destination that is at
// or below last_attempted — runs beyond the watermark are simply
// unattempted, not failures.
func Recompute(source, destination []int) Result {
	if len(destination) == 0 {
		// Nothing has been attempted yet, so nothing below the (nonexistent)
		// watermark can be "missing" either.
		return Result{}
	}

	destSet := make(map[int]bool, len(destination))
	maxDest := destination[0]
	minDest := destination[0]
	for _, r := range destination {
		destSet[r] = true
		if r > maxDest {
			maxDest = r
		}
		if r < minDest {
			minDest = r
		}
	}

	contiguous := minDest
	for destSet[contiguous+1] {
		contiguous++
	}

	missing := filterBelowOrEqual(source, maxDest)
	var stillMissing []int
	for _, r := range missing {
		if !destSet[r] {
			stillMissing = append(stillMissing, r)
		}
	}

	return Result{
		LastAttemptedRun:  maxDest,
		LastContiguousRun: contiguous,
		Missing:           sortedCopy(stillMissing),
	}
}

func filterBelowOrEqual(runs []int, bound int) []int {
	var out []int
	for _, r := range runs {
		if r <= bound {
			out = append(out, r)
		}
	}
	return out
}

func sortedCopy(runs []int) []int {
	out := append([]int(nil), runs...)
	sort.Ints(out)
	return out
}

// Apply overwrites statePath and failureLogPath with result, matching
// "overwrite state and failure log accordingly".
func Apply(statePath, failureLogPath string, result Result) error {
	w := types.Watermark{LastContiguousRun: result.LastContiguousRun, LastAttemptedRun: result.LastAttemptedRun}
	if err := state.WriteState(statePath, w); err != nil {
		return err
	}
	return state.WriteFailureLog(failureLogPath, result.Missing)
}

// SourceLister and DestinationLister abstract the two collaborating stores
// a recovery pass reads from, so Run can drive either the import or
// migrate direction without depending on cfgstore/archivestore directly.
type SourceLister interface {
	ListSourceRuns(ctx context.Context) ([]int, error)
}
type DestinationLister interface {
	ListDestinationRuns(ctx context.Context) ([]int, error)
}

// Run performs a full recovery pass: list both sides, recompute, and
// apply the result to the given state/failure-log paths.
func Run(ctx context.Context, src SourceLister, dst DestinationLister, statePath, failureLogPath string) (Result, error) {
	sourceRuns, err := src.ListSourceRuns(ctx)
	if err != nil {
		return Result{}, err
	}
	destRuns, err := dst.ListDestinationRuns(ctx)
	if err != nil {
		return Result{}, err
	}
	result := Recompute(sourceRuns, destRuns)
	if err := Apply(statePath, failureLogPath, result); err != nil {
		return result, err
	}
	return result, nil
}
