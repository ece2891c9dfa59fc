// Package migratestage implements the migrate stage: exporting a run's
// configuration from the configuration store, packing it into a blob, and
// uploading it to the archive store with optional post-upload verification.
package migratestage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/fnal-sbnd/rrarchiver/internal/archivestore"
	"github.com/fnal-sbnd/rrarchiver/internal/blob"
	"github.com/fnal-sbnd/rrarchiver/internal/blobvalidate"
	"github.com/fnal-sbnd/rrarchiver/internal/cfgstore"
	"github.com/fnal-sbnd/rrarchiver/internal/config"
	"github.com/fnal-sbnd/rrarchiver/internal/errs"
	"github.com/fnal-sbnd/rrarchiver/internal/metrics"
	"github.com/fnal-sbnd/rrarchiver/internal/state"
	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

// Stage implements stage.Hooks for the migrate direction: configuration
// store -> archive store.
type Stage struct {
	Cfg          *config.Config
	ConfigStore  cfgstore.Store
	ArchiveStore *archivestore.Store
	Logger       *slog.Logger
	OTel         *metrics.OTel

	// Validate enables the post-upload MD5 re-download check, the --validate
	// CLI flag. Off by default.
	Validate bool

	// ValidationSpec, when set, runs blobvalidate.Validate against the
	// packed blob before upload and fails the run on any validation error.
	// Nil disables the check.
	ValidationSpec types.ParameterSpec
}

func (s *Stage) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Stage) Name() string           { return "migrate" }
func (s *Stage) StateFilePath() string  { return s.Cfg.App.MigrateStateFile }
func (s *Stage) FailureLogPath() string { return s.Cfg.App.MigrateFailureLog }

// Discover returns every run present in the configuration store but absent
// from the archive store, filtered by incremental watermark when
// requested.
func (s *Stage) Discover(ctx context.Context, incremental bool) ([]int, error) {
	cfgRuns, err := s.ConfigStore.ListRuns(ctx)
	if err != nil {
		return nil, errs.New(errs.KindConfigurationStore, s.Name(), nil, err, nil)
	}
	archived, err := s.ArchiveStore.ExistingRuns(ctx)
	if err != nil {
		return nil, errs.New(errs.KindArchiveStore, s.Name(), nil, err, nil)
	}

	var candidates []int
	for _, r := range cfgRuns {
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

// ProcessOne exports run's configuration, packs it into a blob, uploads
// it, and — when Validate is set — re-downloads it to confirm an identical
// MD5.
func (s *Stage) ProcessOne(ctx context.Context, run int) (bool, error) {
	configName, err := s.ConfigStore.ResolveConfigName(ctx, run)
	if err != nil {
		if cfgstore.IsNotFound(err) {
			s.logger().Error("migrate: run not found in configuration store", "run", run)
			return false, nil
		}
		return false, errs.New(errs.KindConfigurationStore, s.Name(), &run, err, nil)
	}

	workDir := filepath.Join(s.Cfg.App.WorkDir, "migrate-"+ulid.Make().String())
	defer os.RemoveAll(workDir)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return false, errs.New(errs.KindFCLPreparation, s.Name(), &run, err, nil)
	}

	if err := s.ConfigStore.Export(ctx, run, configName, workDir); err != nil {
		return false, errs.New(errs.KindConfigurationStore, s.Name(), &run, err, nil)
	}

	generated, err := blob.Pack(run, workDir)
	if err != nil {
		return false, err
	}
	metrics.BlobsPacked.Add(1)

	if s.ValidationSpec != nil {
		result := blobvalidate.Validate(generated, s.ValidationSpec)
		if result.ErrorCount > 0 {
			return false, errs.New(errs.KindBlobCreation, s.Name(), &run,
				fmt.Errorf("blob validation found %d error(s)", result.ErrorCount),
				map[string]any{"values": result.Values})
		}
	}

	outcome, err := s.ArchiveStore.Upload(ctx, run, generated)
	if err != nil {
		return false, err
	}
	if outcome == archivestore.AlreadyPresent {
		metrics.BlobUploadIdempotent.Add(1)
		s.logger().Warn("migrate: blob already present in archive store, skipping re-upload", "run", run)
	} else {
		s.logger().Info("migrate: uploaded blob to archive store", "run", run)
	}

	if s.Validate {
		if err := s.ArchiveStore.Verify(ctx, run, generated); err != nil {
			metrics.VerificationMismatch.Add(1)
			return false, err
		}
		s.logger().Info("migrate: verification successful", "run", run)
	}

	metrics.RunsMigrated.Add(1)
	s.OTel.AddMigrated(ctx, 1)
	return true, nil
}

// DataURL returns the URL the archive store would serve run's blob from,
// for diagnostics/reporting.
func (s *Stage) DataURL(run int) string {
	return fmt.Sprintf("%s/app/data/%s/%s/key=%s",
		s.Cfg.ArchiveStore.URL, s.Cfg.ArchiveStore.FolderName, s.Cfg.ArchiveStore.ObjectName, strconv.Itoa(run))
}
