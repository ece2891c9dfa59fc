// Package importstage implements the import stage: discovering run
// records on the source filesystem, converting their text files to FHiCL,
// and inserting the result into the configuration store.
package importstage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/fnal-sbnd/rrarchiver/internal/cfgstore"
	"github.com/fnal-sbnd/rrarchiver/internal/config"
	"github.com/fnal-sbnd/rrarchiver/internal/errs"
	"github.com/fnal-sbnd/rrarchiver/internal/metrics"
	"github.com/fnal-sbnd/rrarchiver/internal/state"
)

// Stage implements stage.Hooks for the import direction: source filesystem
// -> configuration store.
type Stage struct {
	Cfg    *config.Config
	Store  cfgstore.Store
	Logger *slog.Logger
	OTel   *metrics.OTel
}

func (s *Stage) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Stage) Name() string           { return "import" }
func (s *Stage) StateFilePath() string  { return s.Cfg.App.ImportStateFile }
func (s *Stage) FailureLogPath() string { return s.Cfg.App.ImportFailureLog }

// Discover returns every run present as a numeric directory under
// source_files.run_records_dir but absent from the configuration store.
// On an incremental pass, runs at or below the watermark's incremental
// start (max of last-contiguous and last-attempted) are excluded, so a run
// that was already attempted and permanently failed is not rediscovered.
func (s *Stage) Discover(ctx context.Context, incremental bool) ([]int, error) {
	entries, err := os.ReadDir(s.Cfg.SourceFiles.RunRecordsDir)
	if err != nil {
		return nil, errs.New(errs.KindConfiguration, s.Name(), nil,
			fmt.Errorf("cannot read run records directory: %w", err), nil)
	}

	fsRuns := map[int]bool{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil && n > 0 {
			fsRuns[n] = true
		}
	}

	storeRuns, err := s.Store.ListRuns(ctx)
	if err != nil {
		return nil, errs.New(errs.KindConfigurationStore, s.Name(), nil, err, nil)
	}
	archived := make(map[int]bool, len(storeRuns))
	for _, r := range storeRuns {
		archived[r] = true
	}

	var candidates []int
	for r := range fsRuns {
		if !archived[r] {
			candidates = append(candidates, r)
		}
	}
	sort.Ints(candidates)

	if incremental {
		start := state.IncrementalStart(s.StateFilePath())
		filtered := candidates[:0]
		for _, r := range candidates {
			if r > start {
				filtered = append(filtered, r)
			}
		}
		candidates = filtered
	}

	if s.Cfg.App.BatchSize > 0 && len(candidates) > s.Cfg.App.BatchSize {
		candidates = candidates[:s.Cfg.App.BatchSize]
	}

	return candidates, nil
}

// ProcessOne prepares a run's configuration for archival and inserts it,
// then — only if metadata.txt carries DAQInterface start/stop times —
// prepares and applies a second, update-mode write carrying RunHistory2.
func (s *Stage) ProcessOne(ctx context.Context, run int) (bool, error) {
	runDir := filepath.Join(s.Cfg.SourceFiles.RunRecordsDir, strconv.Itoa(run))
	if !isDir(runDir) {
		s.logger().Error("import: run directory not found", "run", run, "dir", runDir)
		return false, nil
	}

	workDir := filepath.Join(s.Cfg.App.WorkDir, "import-"+ulid.Make().String())
	defer os.RemoveAll(workDir)

	archiveDir := filepath.Join(workDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}

	if err := copyRunDirNormalized(runDir, archiveDir); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}
	if err := applyConverters(archiveDir, s.Cfg.FhiclizeGenerate.ShouldConvert); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}
	if s.Cfg.FhiclizeGenerate.ShouldGenerate("RunHistory") {
		if ok, err := generateRunHistory(archiveDir, run); err != nil {
			return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
		} else if !ok {
			s.logger().Warn("import: cannot generate RunHistory.fcl, metadata.txt missing", "run", run)
		}
	}
	if err := copySchema(s.Cfg.ConfigurationStore.SchemaDir, archiveDir); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}

	configName := resolveConfigName(runDir)

	if err := s.Store.Insert(ctx, run, configName, archiveDir); err != nil {
		return false, errs.New(errs.KindConfigurationStore, s.Name(), &run, err, nil)
	}

	if !s.Cfg.FhiclizeGenerate.ShouldGenerate("RunHistory2") {
		s.logger().Debug("import: RunHistory2 not enabled, skipping update phase", "run", run)
		s.recordSuccess(ctx)
		return true, nil
	}

	rh2 := buildRunHistory2(runDir)
	if rh2 == "" {
		s.logger().Debug("import: no start/stop time found, skipping update phase", "run", run)
		s.recordSuccess(ctx)
		return true, nil
	}

	updateDir := filepath.Join(workDir, "update")
	if err := os.MkdirAll(updateDir, 0o755); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}
	if err := os.WriteFile(filepath.Join(updateDir, "RunHistory2.fcl"), []byte(rh2), 0o644); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}
	if err := copySchema(s.Cfg.ConfigurationStore.SchemaDir, updateDir); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}

	if err := s.Store.Update(ctx, run, configName, updateDir); err != nil {
		return false, errs.New(errs.KindConfigurationStore, s.Name(), &run, err, nil)
	}

	s.recordSuccess(ctx)
	return true, nil
}

func (s *Stage) recordSuccess(ctx context.Context) {
	metrics.RunsImported.Add(1)
	s.OTel.AddImported(ctx, 1)
}
