// Package state implements the persistent watermark and failure-log store
// shared by the import and migrate stages.
package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

// ReadState loads a watermark from path. A missing or malformed file is not
// an error — it returns the zero-value Watermark.
func ReadState(path string) types.Watermark {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Watermark{}
	}
	var w types.Watermark
	if err := json.Unmarshal(data, &w); err != nil {
		return types.Watermark{}
	}
	return w
}

// WriteState writes w to path atomically (write to a temp file in the same
// directory, then rename), creating parent directories as needed.
func WriteState(path string, w types.Watermark) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp state file: %w", err)
	}
	return nil
}

// AdvanceContiguous computes the union of the current contiguous watermark
// and successfulRuns, then walks upward from the current last-contiguous
// value incrementing while the next run number is present in the union,
// stopping at the first gap. When no contiguous watermark is recorded yet
// (zero), the walk starts just below the lowest run in successfulRuns. The
// result never decreases and is written back to path only if it increased.
func AdvanceContiguous(path string, successfulRuns []int) (types.Watermark, error) {
	w := ReadState(path)

	present := make(map[int]bool, len(successfulRuns))
	for _, r := range successfulRuns {
		present[r] = true
	}

	next := w.LastContiguousRun
	if next == 0 && len(successfulRuns) > 0 {
		lowest := successfulRuns[0]
		for _, r := range successfulRuns[1:] {
			if r < lowest {
				lowest = r
			}
		}
		next = lowest - 1
	}
	for present[next+1] {
		next++
	}

	if next == w.LastContiguousRun {
		return w, nil
	}

	w.LastContiguousRun = next
	if w.LastAttemptedRun < w.LastContiguousRun {
		w.LastAttemptedRun = w.LastContiguousRun
	}
	if err := WriteState(path, w); err != nil {
		return w, err
	}
	return w, nil
}

// AdvanceAttempted sets last_attempted_run to the max of its current value
// and the maximum of attemptedRuns. Never decreases. Written back only if
// increased.
func AdvanceAttempted(path string, attemptedRuns []int) (types.Watermark, error) {
	if len(attemptedRuns) == 0 {
		return ReadState(path), nil
	}
	w := ReadState(path)

	maxAttempted := attemptedRuns[0]
	for _, r := range attemptedRuns[1:] {
		if r > maxAttempted {
			maxAttempted = r
		}
	}

	if maxAttempted <= w.LastAttemptedRun {
		return w, nil
	}

	w.LastAttemptedRun = maxAttempted
	if err := WriteState(path, w); err != nil {
		return w, err
	}
	return w, nil
}

// IncrementalStart returns max(last_contiguous_run, last_attempted_run) for
// the watermark at path.
func IncrementalStart(path string) int {
	return ReadState(path).IncrementalStart()
}

// ParseFailureLog parses an ordered-decimal-integer-per-line failure log.
// Blank lines and non-integer lines are skipped silently. A missing file
// yields an empty slice, not an error.
func ParseFailureLog(path string) []int {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var runs []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		runs = append(runs, n)
	}
	return runs
}

// WriteFailureLog overwrites path wholesale with runs sorted ascending, one
// per line.
func WriteFailureLog(path string, runs []int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating failure log dir: %w", err)
	}
	sorted := append([]int(nil), runs...)
	sort.Ints(sorted)

	var b strings.Builder
	for _, r := range sorted {
		b.WriteString(strconv.Itoa(r))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing failure log: %w", err)
	}
	return nil
}

// AppendFailures appends newFailures to the existing failure log (deduped
// against what's already present, rewritten sorted ascending — "append" in
// the sense of adding entries, not a literal O_APPEND write, since the log
// must stay ordered).
func AppendFailures(path string, newFailures []int) error {
	existing := ParseFailureLog(path)
	seen := make(map[int]bool, len(existing)+len(newFailures))
	all := make([]int, 0, len(existing)+len(newFailures))
	for _, r := range existing {
		if !seen[r] {
			seen[r] = true
			all = append(all, r)
		}
	}
	for _, r := range newFailures {
		if !seen[r] {
			seen[r] = true
			all = append(all, r)
		}
	}
	return WriteFailureLog(path, all)
}
