package cfgstore

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/fnal-sbnd/rrarchiver/internal/errs"
)

// FuzzOptions mirrors config.FuzzConfig without importing the config
// package, so cfgstore stays free of a dependency cycle.
type FuzzOptions struct {
	RandomSkipPercent  float64
	RandomErrorPercent float64
	RandomSkipRetry    bool
	RandomErrorRetry   bool
}

func (o FuzzOptions) enabled() bool {
	return o.RandomSkipPercent > 0 || o.RandomErrorPercent > 0
}

// FuzzStore wraps a Store and injects random skips and errors ahead of
// Insert/Update, for exercising the stage engine's retry and failure-log
// paths without a real backing store. ListRuns, ResolveConfigName, and
// Export pass through untouched — only the write path is perturbed.
type FuzzStore struct {
	inner Store
	opts  FuzzOptions
	rng   *rand.Rand
}

// NewFuzzStore wraps inner with fuzz-mode behavior. If opts is not enabled,
// the returned Store is inner unchanged.
func NewFuzzStore(inner Store, opts FuzzOptions, seed int64) Store {
	if !opts.enabled() {
		return inner
	}
	return &FuzzStore{inner: inner, opts: opts, rng: rand.New(rand.NewSource(seed))}
}

func (f *FuzzStore) ListRuns(ctx context.Context) ([]int, error) {
	return f.inner.ListRuns(ctx)
}

func (f *FuzzStore) ResolveConfigName(ctx context.Context, run int) (string, error) {
	return f.inner.ResolveConfigName(ctx, run)
}

func (f *FuzzStore) Insert(ctx context.Context, run int, configName string, dir string) error {
	if err := f.maybeInject(run); err != nil {
		return err
	}
	return f.inner.Insert(ctx, run, configName, dir)
}

func (f *FuzzStore) Update(ctx context.Context, run int, configName string, dir string) error {
	if err := f.maybeInject(run); err != nil {
		return err
	}
	return f.inner.Update(ctx, run, configName, dir)
}

func (f *FuzzStore) Export(ctx context.Context, run int, configName string, destDir string) error {
	return f.inner.Export(ctx, run, configName, destDir)
}

// maybeInject rolls the skip and error dice for a single run, in that
// order: a skipped run never also reaches the error roll.
func (f *FuzzStore) maybeInject(run int) error {
	if f.opts.RandomSkipPercent > 0 && f.rng.Float64()*100 < f.opts.RandomSkipPercent {
		kind := errs.KindPermanentSkip
		if f.opts.RandomSkipRetry {
			kind = errs.KindConfigurationStore
		}
		return errs.New(kind, "", &run, fmt.Errorf("fuzz: injected skip"), nil)
	}
	if f.opts.RandomErrorPercent > 0 && f.rng.Float64()*100 < f.opts.RandomErrorPercent {
		kind := errs.KindConfigurationStore
		if !f.opts.RandomErrorRetry {
			kind = errs.KindPermanentSkip
		}
		return errs.New(kind, "", &run, fmt.Errorf("fuzz: injected error"), nil)
	}
	return nil
}
