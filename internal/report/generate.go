package report

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/fnal-sbnd/rrarchiver/internal/config"
	"github.com/fnal-sbnd/rrarchiver/internal/state"
)

// FilesystemRunLister, ConfigurationStoreRunLister and
// ArchiveStoreRunLister mirror the narrow read-only contracts the
// report needs from each store, so this package does not import
// cfgstore/archivestore directly.
type FilesystemRunLister interface {
	ListFilesystemRuns() ([]int, error)
}
type ConfigurationStoreRunLister interface {
	ListRuns(ctx context.Context) ([]int, error)
}
type ArchiveStoreRunLister interface {
	ExistingRuns(ctx context.Context) (map[int]bool, error)
}

// FilesystemLister is the default FilesystemRunLister, scanning a
// run_records_dir the way importstage.Discover does.
type FilesystemLister struct {
	RunRecordsDir string
}

func (f FilesystemLister) ListFilesystemRuns() ([]int, error) {
	entries, err := os.ReadDir(f.RunRecordsDir)
	if err != nil {
		return nil, err
	}
	var runs []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil && n > 0 {
			runs = append(runs, n)
		}
	}
	return runs, nil
}

// Generate runs the full status report and logs it structurally. If any
// source's query fails, the failure is logged and the report stops there:
// no summaries, state comparison or recommendations are logged.
func Generate(ctx context.Context, logger *slog.Logger, cfg *config.Config,
	fs FilesystemRunLister, cfgStore ConfigurationStoreRunLister, archiveStore ArchiveStoreRunLister,
	compareState bool) {

	logger.Info("status report: querying data sources")

	fsRuns, err := fs.ListFilesystemRuns()
	if err != nil {
		logger.Error("status report: filesystem query failed", "error", err)
		return
	}
	cfgRuns, err := cfgStore.ListRuns(ctx)
	if err != nil {
		logger.Error("status report: configuration store query failed", "error", err)
		return
	}
	archiveSet, err := archiveStore.ExistingRuns(ctx)
	if err != nil {
		logger.Error("status report: archive store query failed", "error", err)
		return
	}
	archiveRuns := make([]int, 0, len(archiveSet))
	for r := range archiveSet {
		archiveRuns = append(archiveRuns, r)
	}

	fsSummary := Summarize(fsRuns)
	cfgSummary := Summarize(cfgRuns)
	archiveSummary := Summarize(archiveRuns)

	logger.Info("status report: filesystem", "location", cfg.SourceFiles.RunRecordsDir,
		"total", fsSummary.Total, "min", fsSummary.Min, "max", fsSummary.Max, "gaps", len(fsSummary.Gaps))
	logger.Info("status report: configuration store", "uri", cfg.ConfigurationStore.URI,
		"total", cfgSummary.Total, "min", cfgSummary.Min, "max", cfgSummary.Max, "gaps", len(cfgSummary.Gaps))
	logger.Info("status report: archive store", "url", cfg.ArchiveStore.URL,
		"folder", cfg.ArchiveStore.FolderName, "object", cfg.ArchiveStore.ObjectName,
		"total", archiveSummary.Total, "min", archiveSummary.Min, "max", archiveSummary.Max, "gaps", len(archiveSummary.Gaps))

	if compareState {
		logStateComparison(logger, "import", fsRuns, cfgRuns, cfg.App.ImportStateFile, cfg.App.ImportFailureLog)
		logStateComparison(logger, "migrate", cfgRuns, archiveRuns, cfg.App.MigrateStateFile, cfg.App.MigrateFailureLog)
	}

	for i, rec := range Recommendations(fsRuns, cfgRuns, archiveRuns) {
		if rec.Severity == "warning" {
			logger.Warn("status report: recommendation", "index", i+1, "text", rec.Text)
		} else {
			logger.Info("status report: recommendation", "index", i+1, "text", rec.Text)
		}
	}
}

func logStateComparison(logger *slog.Logger, stage string, upstream, downstream []int, statePath, failureLogPath string) {
	w := state.ReadState(statePath)
	failures := state.ParseFailureLog(failureLogPath)
	cmp := CompareState(upstream, downstream, w.LastContiguousRun, failures)

	logger.Info("status report: state comparison", "stage", stage, "last_contiguous_run", cmp.LastContiguousRun)
	if len(cmp.MissingDownstream) > 0 {
		logger.Warn("status report: missing downstream before watermark", "stage", stage, "count", len(cmp.MissingDownstream), "runs", cmp.MissingDownstream)
	}
	if len(cmp.NewSinceWatermark) > 0 {
		logger.Info("status report: new runs since watermark", "stage", stage, "count", len(cmp.NewSinceWatermark))
	}
	if len(cmp.FailedRuns) > 0 {
		logger.Warn("status report: failed runs logged", "stage", stage, "count", len(cmp.FailedRuns), "runs", cmp.FailedRuns)
	}
}
