// Package dispatch implements the archiver's top-level process lifecycle:
// load configuration, acquire the single-instance lock, start the lock
// watcher, run exactly one execution mode, and translate the outcome into
// a process exit code.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"github.com/fnal-sbnd/rrarchiver/internal/archivestore"
	"github.com/fnal-sbnd/rrarchiver/internal/blobvalidate"
	"github.com/fnal-sbnd/rrarchiver/internal/cfgstore"
	"github.com/fnal-sbnd/rrarchiver/internal/config"
	"github.com/fnal-sbnd/rrarchiver/internal/errs"
	"github.com/fnal-sbnd/rrarchiver/internal/importstage"
	"github.com/fnal-sbnd/rrarchiver/internal/lock"
	"github.com/fnal-sbnd/rrarchiver/internal/logging"
	"github.com/fnal-sbnd/rrarchiver/internal/metrics"
	"github.com/fnal-sbnd/rrarchiver/internal/migratestage"
	"github.com/fnal-sbnd/rrarchiver/internal/notify"
	"github.com/fnal-sbnd/rrarchiver/internal/recovery"
	"github.com/fnal-sbnd/rrarchiver/internal/report"
	"github.com/fnal-sbnd/rrarchiver/internal/shutdown"
	"github.com/fnal-sbnd/rrarchiver/internal/stage"
	"github.com/fnal-sbnd/rrarchiver/pkg/types"
)

// Options holds the parsed CLI flags for a single invocation.
type Options struct {
	ConfigFile          string
	Incremental         bool
	ImportOnly          bool
	MigrateOnly         bool
	RetryFailedImport   bool
	RetryFailedMigrate  bool
	ReportStatus        bool
	CompareState        bool
	RecoverImportState  bool
	RecoverMigrateState bool
	Validate            bool
	Verbose             bool
}

// resolveMode maps a set of mode flags to exactly one ExecutionMode, or an
// error if more than one mode flag was given. The absence of any mode flag
// selects the full pipeline.
func resolveMode(opts Options) (types.ExecutionMode, error) {
	set := map[types.ExecutionMode]bool{}
	if opts.ImportOnly {
		set[types.ModeImportOnly] = true
	}
	if opts.MigrateOnly {
		set[types.ModeMigrateOnly] = true
	}
	if opts.RetryFailedImport {
		set[types.ModeRetryFailedImport] = true
	}
	if opts.RetryFailedMigrate {
		set[types.ModeRetryFailedMigrate] = true
	}
	if opts.ReportStatus {
		set[types.ModeReportStatus] = true
	}
	if opts.RecoverImportState {
		set[types.ModeRecoverImportState] = true
	}
	if opts.RecoverMigrateState {
		set[types.ModeRecoverMigrateState] = true
	}

	switch len(set) {
	case 0:
		return types.ModeFullPipeline, nil
	case 1:
		for m := range set {
			return m, nil
		}
	}
	return "", fmt.Errorf("at most one mode flag may be given")
}

// Execute runs the archiver end to end: config, logging, lock, watcher,
// the selected mode, and cleanup. It never panics on a known-error path —
// every failure resolves to an ExitCode.
func Execute(ctx context.Context, opts Options) types.ExitCode {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		color.Red("failed to load %s: %v", opts.ConfigFile, err)
		return types.ExitError
	}

	logger, closeLog := logging.New(cfg.App, opts.Verbose)
	defer closeLog()

	mode, err := resolveMode(opts)
	if err != nil {
		logger.Error("dispatcher: invalid flag combination", "error", err)
		return types.ExitError
	}

	fileLock := lock.New(cfg.App.LockFile)
	if err := fileLock.Acquire(); err != nil {
		var held *lock.AlreadyHeldError
		if errors.As(err, &held) {
			logger.Error("dispatcher: lock already held", "path", held.Path, "pid", held.PID)
		} else {
			logger.Error("dispatcher: failed to acquire lock", "error", err)
		}
		return types.ExitError
	}
	defer fileLock.Release()

	coord := shutdown.New(nil)
	coord.NotifySignal()
	defer coord.Stop()

	watcher := lock.NewWatcher(fileLock, coord, logger)
	watcher.Start(ctx)
	defer watcher.Stop()

	otel, err := metrics.NewOTel(nil)
	if err != nil {
		logger.Warn("dispatcher: OpenTelemetry metrics disabled", "error", err)
	}

	notifier := notify.NewDispatcher(cfg.Reporting, logger)

	runner := &runner{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		coord:    coord,
		otel:     otel,
		notifier: notifier,
	}

	code, err := runner.run(ctx, mode)
	if err != nil {
		var se *errs.Error
		if errors.As(err, &se) {
			logger.Error("dispatcher: aborting run", "kind", se.Kind, "error", err)
			return types.ExitError
		}
		logger.Error("dispatcher: unexpected error", "error", err)
		return types.ExitUnexpectedError
	}
	return code
}

// runner carries the collaborators built once per invocation and shared
// across whichever mode actually runs.
type runner struct {
	cfg      *config.Config
	opts     Options
	logger   *slog.Logger
	coord    *shutdown.Coordinator
	otel     *metrics.OTel
	notifier *notify.Dispatcher
}

func (r *runner) run(ctx context.Context, mode types.ExecutionMode) (types.ExitCode, error) {
	switch mode {
	case types.ModeReportStatus:
		return r.runReportStatus(ctx)
	case types.ModeRecoverImportState:
		return r.runRecoverImportState(ctx)
	case types.ModeRecoverMigrateState:
		return r.runRecoverMigrateState(ctx)
	case types.ModeImportOnly:
		return r.runImport(ctx, r.opts.Incremental)
	case types.ModeMigrateOnly:
		return r.runMigrate(ctx, r.opts.Incremental)
	case types.ModeRetryFailedImport:
		return r.runImportRecovery(ctx)
	case types.ModeRetryFailedMigrate:
		return r.runMigrateRecovery(ctx)
	default:
		return r.runFullPipeline(ctx)
	}
}

func (r *runner) runFullPipeline(ctx context.Context) (types.ExitCode, error) {
	importCode, err := r.runImport(ctx, r.opts.Incremental)
	if err != nil {
		return importCode, err
	}
	migrateCode, err := r.runMigrate(ctx, r.opts.Incremental)
	if err != nil {
		return migrateCode, err
	}
	if importCode != types.ExitSuccess {
		return importCode, nil
	}
	return migrateCode, nil
}

func (r *runner) buildConfigStore() cfgstore.Store {
	var base cfgstore.Store
	switch r.cfg.ConfigurationStore.Mode {
	case "driver":
		base = cfgstore.NewDriverStore(r.cfg.ConfigurationStore.URI)
	default:
		base = cfgstore.NewCLIStore(cfgstore.CLIConfig{
			SetupScript: r.cfg.ConfigurationStore.SetupScript,
			DatabaseURI: r.cfg.ConfigurationStore.URI,
			RemoteHost:  r.cfg.ConfigurationStore.RemoteHost,
		})
	}
	return cfgstore.NewFuzzStore(base, cfgstore.FuzzOptions{
		RandomSkipPercent:  r.cfg.Fuzz.RandomSkipPercent,
		RandomErrorPercent: r.cfg.Fuzz.RandomErrorPercent,
		RandomSkipRetry:    r.cfg.Fuzz.RandomSkipRetry,
		RandomErrorRetry:   r.cfg.Fuzz.RandomErrorRetry,
	}, time.Now().UnixNano())
}

func (r *runner) buildArchiveStore(ctx context.Context) (*archivestore.Store, error) {
	return archivestore.New(ctx, archivestore.Config{
		URL:            r.cfg.ArchiveStore.URL,
		FolderName:     r.cfg.ArchiveStore.FolderName,
		ObjectName:     r.cfg.ArchiveStore.ObjectName,
		WriterUser:     r.cfg.ArchiveStore.WriterUser,
		WriterPassword: r.cfg.ArchiveStore.WriterPassword,
		Timeout:        time.Duration(r.cfg.ArchiveStore.TimeoutSeconds) * time.Second,
	})
}

// configStoreWorkers clamps the worker pool to 1 when the configuration
// store is bound through the in-process driver, whose own MaxConcurrency
// is 1 regardless of configured parallelism.
func (r *runner) configStoreWorkers() int {
	if r.cfg.ConfigurationStore.Mode == "driver" {
		return 1
	}
	return r.cfg.App.ParallelWorkers
}

func (r *runner) runImport(ctx context.Context, incremental bool) (types.ExitCode, error) {
	store := r.buildConfigStore()
	hooks := &importstage.Stage{Cfg: r.cfg, Store: store, Logger: r.logger, OTel: r.otel}
	engine := &stage.Engine{
		Hooks:         hooks,
		MaxWorkers:    r.configStoreWorkers(),
		RetryAttempts: r.cfg.App.RunProcessRetries,
		RetryDelay:    time.Duration(r.cfg.App.RetryDelaySeconds) * time.Second,
		Logger:        r.logger,
		ShutdownCh:    r.coord.Done(),
	}

	code, err := engine.Run(ctx, incremental)
	r.notifyStageOutcome(ctx, hooks.Name())
	if err != nil {
		return types.ExitError, err
	}
	return exitFromStageCode(code), nil
}

func (r *runner) runMigrate(ctx context.Context, incremental bool) (types.ExitCode, error) {
	archiveStore, err := r.buildArchiveStore(ctx)
	if err != nil {
		return types.ExitError, err
	}
	hooks := &migratestage.Stage{
		Cfg:            r.cfg,
		ConfigStore:    r.buildConfigStore(),
		ArchiveStore:   archiveStore,
		Logger:         r.logger,
		OTel:           r.otel,
		Validate:       r.opts.Validate,
		ValidationSpec: blobvalidate.DefaultParameterSpec,
	}
	engine := &stage.Engine{
		Hooks:         hooks,
		MaxWorkers:    r.cfg.App.ParallelWorkers,
		RetryAttempts: r.cfg.App.RunProcessRetries,
		RetryDelay:    time.Duration(r.cfg.App.RetryDelaySeconds) * time.Second,
		Logger:        r.logger,
		ShutdownCh:    r.coord.Done(),
	}

	code, err := engine.Run(ctx, incremental)
	r.notifyStageOutcome(ctx, hooks.Name())
	if err != nil {
		return types.ExitError, err
	}
	return exitFromStageCode(code), nil
}

func (r *runner) runImportRecovery(ctx context.Context) (types.ExitCode, error) {
	store := r.buildConfigStore()
	hooks := &importstage.Stage{Cfg: r.cfg, Store: store, Logger: r.logger, OTel: r.otel}
	engine := &stage.Engine{
		Hooks:         hooks,
		MaxWorkers:    r.configStoreWorkers(),
		RetryAttempts: r.cfg.App.RunProcessRetries,
		RetryDelay:    time.Duration(r.cfg.App.RetryDelaySeconds) * time.Second,
		Logger:        r.logger,
		ShutdownCh:    r.coord.Done(),
	}
	code, err := engine.RunFailureRecovery(ctx)
	r.notifyStageOutcome(ctx, hooks.Name())
	if err != nil {
		return types.ExitError, err
	}
	return exitFromStageCode(code), nil
}

func (r *runner) runMigrateRecovery(ctx context.Context) (types.ExitCode, error) {
	archiveStore, err := r.buildArchiveStore(ctx)
	if err != nil {
		return types.ExitError, err
	}
	hooks := &migratestage.Stage{
		Cfg:            r.cfg,
		ConfigStore:    r.buildConfigStore(),
		ArchiveStore:   archiveStore,
		Logger:         r.logger,
		OTel:           r.otel,
		Validate:       r.opts.Validate,
		ValidationSpec: blobvalidate.DefaultParameterSpec,
	}
	engine := &stage.Engine{
		Hooks:         hooks,
		MaxWorkers:    r.cfg.App.ParallelWorkers,
		RetryAttempts: r.cfg.App.RunProcessRetries,
		RetryDelay:    time.Duration(r.cfg.App.RetryDelaySeconds) * time.Second,
		Logger:        r.logger,
		ShutdownCh:    r.coord.Done(),
	}
	code, err := engine.RunFailureRecovery(ctx)
	r.notifyStageOutcome(ctx, hooks.Name())
	if err != nil {
		return types.ExitError, err
	}
	return exitFromStageCode(code), nil
}

// notifyStageOutcome sends a consolidated failure summary for stage's
// failure log, matching the "notification at stage end" behavior. It is
// best-effort: a failed query just means nothing is dispatched.
func (r *runner) notifyStageOutcome(ctx context.Context, stageName string) {
	var logPath string
	switch stageName {
	case "import":
		logPath = r.cfg.App.ImportFailureLog
	case "migrate":
		logPath = r.cfg.App.MigrateFailureLog
	default:
		return
	}
	failed := failureLogRuns(logPath)
	r.notifier.Dispatch(ctx, notify.Summary{Stage: stageName, Failed: failed})
}

func (r *runner) runReportStatus(ctx context.Context) (types.ExitCode, error) {
	archiveStore, err := r.buildArchiveStore(ctx)
	if err != nil {
		return types.ExitError, err
	}
	fs := report.FilesystemLister{RunRecordsDir: r.cfg.SourceFiles.RunRecordsDir}
	report.Generate(ctx, r.logger, r.cfg, fs, r.buildConfigStore(), archiveStore, r.opts.CompareState)
	return types.ExitSuccess, nil
}

func (r *runner) runRecoverImportState(ctx context.Context) (types.ExitCode, error) {
	src := fsSourceLister{dir: r.cfg.SourceFiles.RunRecordsDir}
	dst := cfgStoreLister{store: r.buildConfigStore()}
	result, err := recovery.Run(ctx, src, dst, r.cfg.App.ImportStateFile, r.cfg.App.ImportFailureLog)
	if err != nil {
		return types.ExitError, err
	}
	r.logger.Info("recover-import-state: complete",
		"last_contiguous_run", result.LastContiguousRun, "last_attempted_run", result.LastAttemptedRun,
		"missing", len(result.Missing))
	return types.ExitSuccess, nil
}

func (r *runner) runRecoverMigrateState(ctx context.Context) (types.ExitCode, error) {
	archiveStore, err := r.buildArchiveStore(ctx)
	if err != nil {
		return types.ExitError, err
	}
	src := cfgStoreLister{store: r.buildConfigStore()}
	dst := archiveStoreLister{store: archiveStore}
	result, err := recovery.Run(ctx, src, dst, r.cfg.App.MigrateStateFile, r.cfg.App.MigrateFailureLog)
	if err != nil {
		return types.ExitError, err
	}
	r.logger.Info("recover-migrate-state: complete",
		"last_contiguous_run", result.LastContiguousRun, "last_attempted_run", result.LastAttemptedRun,
		"missing", len(result.Missing))
	return types.ExitSuccess, nil
}

// exitFromStageCode translates an Engine template method's 0/1 return
// into an ExitCode: 1 ("some run failed or was skipped for shutdown")
// always maps to a known error, never the unexpected-error code.
func exitFromStageCode(code int) types.ExitCode {
	if code == 0 {
		return types.ExitSuccess
	}
	return types.ExitError
}
