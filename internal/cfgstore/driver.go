package cfgstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fnal-sbnd/rrarchiver/internal/errs"
)

// DriverStore is the in-process-driver transport variant. The underlying
// driver binding is not assumed to be thread-safe, so every call is
// serialized behind mu — callers should clamp their worker pool to 1
// concurrent task when using this transport (see MaxConcurrency).
type DriverStore struct {
	mu   sync.Mutex
	root string // local directory standing in for the driver's own storage
}

// NewDriverStore constructs a DriverStore rooted at dataDir. In production
// this wraps a binding to the real configuration-store driver; this
// implementation models its storage as a local directory tree so the
// stage engines above it can be exercised end-to-end without that
// external dependency.
func NewDriverStore(dataDir string) *DriverStore {
	return &DriverStore{root: dataDir}
}

// MaxConcurrency reports the adapter's own concurrency ceiling: the driver
// binding serializes every call, so a worker pool above 1 buys nothing.
func (d *DriverStore) MaxConcurrency() int { return 1 }

func (d *DriverStore) runDir(run int, configName string) string {
	return filepath.Join(d.root, itoa(run), configName)
}

func (d *DriverStore) ListRuns(ctx context.Context) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.KindConfigurationStore, "", nil, err, nil)
	}
	var runs []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := parsePositiveInt(e.Name()); ok {
			runs = append(runs, n)
		}
	}
	sort.Ints(runs)
	return runs, nil
}

func (d *DriverStore) ResolveConfigName(ctx context.Context, run int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	runRoot := filepath.Join(d.root, itoa(run))
	entries, err := os.ReadDir(runRoot)
	if err != nil || len(entries) == 0 {
		return "", errs.New(errs.KindConfigurationStore, "", &run, errNotFound, nil)
	}
	return entries[0].Name(), nil
}

func (d *DriverStore) Insert(ctx context.Context, run int, configName string, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dest := d.runDir(run, configName)
	if _, err := os.Stat(dest); err == nil {
		return errs.New(errs.KindConfigurationStore, "", &run, errAlreadyExists, map[string]any{"config_name": configName})
	}
	return copyTree(dir, dest)
}

func (d *DriverStore) Update(ctx context.Context, run int, configName string, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dest := d.runDir(run, configName)
	if _, err := os.Stat(dest); err != nil {
		return errs.New(errs.KindConfigurationStore, "", &run, errNotFound, map[string]any{"config_name": configName})
	}
	return copyTree(dir, dest)
}

func (d *DriverStore) Export(ctx context.Context, run int, configName string, destDir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	src := d.runDir(run, configName)
	if _, err := os.Stat(src); err != nil {
		return errs.New(errs.KindConfigurationStore, "", &run, errNotFound, map[string]any{"config_name": configName})
	}
	return copyTree(src, destDir)
}
