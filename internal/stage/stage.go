// Package stage implements the Template Method engine shared by the import
// and migrate stages: discovery, bounded-concurrency processing with
// per-run retry, progress reporting, shutdown-aware draining, and the
// watermark/failure-log bookkeeping that follows a batch.
package stage

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fnal-sbnd/rrarchiver/internal/errs"
	"github.com/fnal-sbnd/rrarchiver/internal/state"
)

// ProgressReportInterval is how often (in completed items) the engine logs
// a progress line during a batch.
const ProgressReportInterval = 10

// Hooks is the set of stage-specific behaviors the engine drives: the parts
// that differ between the import and migrate directions.
type Hooks interface {
	// Discover returns the run numbers to process for this invocation.
	// incremental selects whether discovery is scoped to runs past the
	// current watermark or spans the full source.
	Discover(ctx context.Context, incremental bool) ([]int, error)

	// ProcessOne processes a single run, returning false for an
	// ordinary, non-retryable failure (counted as failed without a
	// retryable error) and an error for anything that should go through
	// the retry loop.
	ProcessOne(ctx context.Context, run int) (bool, error)

	StateFilePath() string
	FailureLogPath() string
	Name() string
}

// Engine runs the two template methods — Run and RunFailureRecovery — over
// a Hooks implementation.
type Engine struct {
	Hooks Hooks

	MaxWorkers       int
	RetryAttempts    int
	RetryDelay       time.Duration
	ProgressInterval int

	Logger *slog.Logger

	// ShutdownCh, when non-nil, is selected on between retries and before
	// launching each run; once closed, no new runs are launched and the
	// engine drains whatever is already in flight.
	ShutdownCh <-chan struct{}
}

// BatchOutcome summarizes one call to processBatch.
type BatchOutcome struct {
	Successful []int
	Failed     []int
	NotStarted []int
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) maxWorkers() int {
	if e.MaxWorkers <= 0 {
		return 1
	}
	return e.MaxWorkers
}

func (e *Engine) progressInterval() int {
	if e.ProgressInterval <= 0 {
		return ProgressReportInterval
	}
	return e.ProgressInterval
}

// Run is the "forward" template method: discover runs for this
// invocation, process them, advance both watermarks, and record failures.
// Returns 0 on full success, 1 if any run failed or was skipped for
// shutdown.
func (e *Engine) Run(ctx context.Context, incremental bool) (int, error) {
	name := e.Hooks.Name()
	runs, err := e.Hooks.Discover(ctx, incremental)
	if err != nil {
		e.logger().Error("stage: failed to discover runs", "stage", name, "error", err)
		return 1, err
	}
	if len(runs) == 0 {
		e.logger().Info("stage: no runs to process", "stage", name)
		return 0, nil
	}

	outcome := e.processBatch(ctx, runs)
	e.advanceState(outcome)

	if len(outcome.Failed) > 0 || len(outcome.NotStarted) > 0 {
		return 1, nil
	}
	return 0, nil
}

// RunFailureRecovery is the "retry" template method: reprocess every run
// named in the stage's failure log, advance state the same way Run does,
// and rewrite the failure log down to only the runs still failing.
func (e *Engine) RunFailureRecovery(ctx context.Context) (int, error) {
	name := e.Hooks.Name()
	failureLog := e.Hooks.FailureLogPath()
	failedRuns := state.ParseFailureLog(failureLog)
	if len(failedRuns) == 0 {
		e.logger().Info("stage: no failed runs to retry", "stage", name)
		return 0, nil
	}

	e.logger().Info("stage: retrying failed runs", "stage", name, "count", len(failedRuns))
	outcome := e.processBatch(ctx, failedRuns)
	e.advanceState(outcome)

	remaining := append(outcome.Failed, outcome.NotStarted...)
	sort.Ints(remaining)
	if err := state.WriteFailureLog(failureLog, remaining); err != nil {
		return 1, err
	}

	e.logger().Info("stage: recovery complete", "stage", name,
		"recovered", len(outcome.Successful), "still_failing", len(remaining))
	if len(remaining) > 0 {
		return 1, nil
	}
	return 0, nil
}

// advanceState applies the post-batch watermark updates: contiguous state
// advances only past runs that actually succeeded; attempted state
// advances past every run the batch tried, successful or not, so the
// incremental-start computation (max(contiguous, attempted)) never
// re-discovers a run that was already tried and failed permanently.
func (e *Engine) advanceState(outcome BatchOutcome) {
	path := e.Hooks.StateFilePath()
	name := e.Hooks.Name()

	if len(outcome.Successful) > 0 {
		if _, err := state.AdvanceContiguous(path, outcome.Successful); err != nil {
			e.logger().Error("stage: failed to advance contiguous state", "stage", name, "error", err)
		}
	}

	attempted := append(append([]int(nil), outcome.Successful...), outcome.Failed...)
	if len(attempted) > 0 {
		if _, err := state.AdvanceAttempted(path, attempted); err != nil {
			e.logger().Error("stage: failed to advance attempted state", "stage", name, "error", err)
		}
	}

	if len(outcome.Failed) > 0 {
		if err := state.AppendFailures(e.Hooks.FailureLogPath(), outcome.Failed); err != nil {
			e.logger().Error("stage: failed to record failures", "stage", name, "error", err)
		}
	}
}

// processBatch runs every item in runs with bounded concurrency, retrying
// retryable failures up to RetryAttempts times, and stops launching new
// work once ShutdownCh closes, draining whatever is already in flight.
func (e *Engine) processBatch(ctx context.Context, runs []int) BatchOutcome {
	name := e.Hooks.Name()
	total := len(runs)
	sem := semaphore.NewWeighted(int64(e.maxWorkers()))

	var (
		mu         sync.Mutex
		successful []int
		failed     []int
		notStarted []int
		completed  int
	)

	e.logger().Info("stage: starting batch", "stage", name, "total", total, "workers", e.maxWorkers())

	var wg sync.WaitGroup
	for _, run := range runs {
		run := run

		if e.shuttingDown() {
			mu.Lock()
			notStarted = append(notStarted, run)
			mu.Unlock()
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			notStarted = append(notStarted, run)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			ok := e.processOneWithRetry(ctx, run)

			mu.Lock()
			if ok {
				successful = append(successful, run)
			} else {
				failed = append(failed, run)
			}
			completed++
			n := completed
			mu.Unlock()

			if n%e.progressInterval() == 0 || n == total {
				e.logger().Info("stage: progress", "stage", name, "completed", n, "total", total)
			}
		}()
	}
	wg.Wait()

	if len(notStarted) > 0 {
		e.logger().Warn("stage: batch interrupted by shutdown", "stage", name,
			"successful", len(successful), "failed", len(failed), "not_started", len(notStarted))
	} else {
		e.logger().Info("stage: batch complete", "stage", name,
			"successful", len(successful), "failed", len(failed))
	}

	return BatchOutcome{Successful: successful, Failed: failed, NotStarted: notStarted}
}

func (e *Engine) shuttingDown() bool {
	if e.ShutdownCh == nil {
		return false
	}
	select {
	case <-e.ShutdownCh:
		return true
	default:
		return false
	}
}

// processOneWithRetry retries ProcessOne up to RetryAttempts extra times
// for retryable errors, sleeping RetryDelay between attempts. An errs.Error
// whose Kind is not Retryable (including KindPermanentSkip) ends the loop
// immediately; errors of any other type are retried.
func (e *Engine) processOneWithRetry(ctx context.Context, run int) bool {
	name := e.Hooks.Name()
	attempts := e.RetryAttempts + 1

	for attempt := 0; attempt < attempts; attempt++ {
		e.logger().Info("stage: processing run", "stage", name, "run", run, "attempt", attempt+1, "of", attempts)

		ok, err := e.Hooks.ProcessOne(ctx, run)
		if err == nil {
			if ok {
				e.logger().Info("stage: run processed successfully", "stage", name, "run", run)
			} else {
				e.logger().Error("stage: run processing failed", "stage", name, "run", run)
			}
			return ok
		}

		var se *errs.Error
		retryable := true
		if asErrsError(err, &se) {
			retryable = se.Kind.Retryable()
			if se.Kind == errs.KindPermanentSkip {
				e.logger().Error("stage: run permanently failed", "stage", name, "run", run, "error", err)
				return false
			}
		}

		e.logger().Error("stage: run failed", "stage", name, "run", run, "attempt", attempt+1, "of", attempts, "error", err)
		if !retryable || attempt == attempts-1 {
			return false
		}

		if e.sleepOrShutdown(ctx) {
			return false
		}
	}
	return false
}

// sleepOrShutdown waits RetryDelay before the next attempt, returning true
// early if the context is cancelled or shutdown has been requested.
func (e *Engine) sleepOrShutdown(ctx context.Context) bool {
	if e.RetryDelay <= 0 {
		return e.shuttingDown()
	}
	timer := time.NewTimer(e.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return e.shuttingDown()
	case <-ctx.Done():
		return true
	case <-e.ShutdownCh:
		return true
	}
}
