// Package types defines the shared domain types for the run record archiver.
package types

import "time"

// Watermark tracks per-stage progress. LastContiguousRun is the highest run
// number N such that every run from the lowest recorded run up to N has been
// successfully processed with no gaps. LastAttemptedRun is the highest run number that has been attempted,
// successfully or not. The invariant LastContiguousRun <= LastAttemptedRun
// always holds.
type Watermark struct {
	LastContiguousRun int `json:"last_contiguous_run"`
	LastAttemptedRun  int `json:"last_attempted_run"`
}

// IncrementalStart is the run number below or at which discovery may skip
// work on an incremental pass.
func (w Watermark) IncrementalStart() int {
	if w.LastContiguousRun > w.LastAttemptedRun {
		return w.LastContiguousRun
	}
	return w.LastAttemptedRun
}

// RunOutcome is the per-run result of a single process_one attempt.
type RunOutcome struct {
	Run        int
	Successful bool
	Skipped    bool // permanent-skip: counted as failed, not retried
	Err        error
}

// BatchResult is the aggregate outcome of draining a worker-pool batch.
type BatchResult struct {
	Successful []int
	Failed     []int
	Attempted  []int
	ShutDown   bool
}

// SourceRunRecord describes one run directory discovered on the source
// filesystem.
type SourceRunRecord struct {
	RunNumber int
	Dir       string
}

// Metadata holds the recognized fields parsed out of a run's metadata.txt.
type Metadata struct {
	ConfigName      string
	Components      []string
	DAQStartTime    string
	DAQStopTime     string
	HasStopTime     bool
	Raw             string
}

// ResolvedConfigName returns ConfigName, or "standard" when it is unset,
// with '/' mapped to '_'.
func (m Metadata) ResolvedConfigName() string {
	name := m.ConfigName
	if name == "" {
		return "standard"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '/' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// BlobFile is a single named section inside a packed blob.
type BlobFile struct {
	Name    string
	Content string
}

// ValidationResult is the outcome of validating a blob against a parameter
// spec: the number of errors found and, per parameter label, either the
// extracted value or an error message.
type ValidationResult struct {
	ErrorCount int
	Values     map[string]string // param_label -> value or error message
}

// ParameterSpec maps filename -> param_label -> fhicl_key for blob
// validation.
type ParameterSpec map[string]map[string]string

// FuzzMode enumerates the injected-failure mode for testing adapters.
type FuzzMode string

const (
	FuzzNone  FuzzMode = "none"
	FuzzSkip  FuzzMode = "skip"
	FuzzError FuzzMode = "error"
)

// BackingKind is informational only — the configuration-store's own backing
// database is an external collaborator outside this module's scope.
type BackingKind string

const (
	BackingMongoDB      BackingKind = "mongodb"
	BackingFilesystemDB BackingKind = "filesystem"
)

// StageName identifies which stage produced a log entry or error.
type StageName string

const (
	StageImport            StageName = "Import"
	StageMigration         StageName = "Migration"
	StageRecoveryImport    StageName = "Recovery-Import"
	StageRecoveryMigration StageName = "Recovery-Migration"
	StageReport            StageName = "Report"
	StageValidation        StageName = "Validation"
)

// ExecutionMode identifies the top-level dispatcher mode. Exactly one is
// selected per invocation.
type ExecutionMode string

const (
	ModeFullPipeline        ExecutionMode = "full_pipeline"
	ModeImportOnly          ExecutionMode = "import_only"
	ModeMigrateOnly         ExecutionMode = "migrate_only"
	ModeRetryFailedImport   ExecutionMode = "retry_failed_import"
	ModeRetryFailedMigrate  ExecutionMode = "retry_failed_migrate"
	ModeReportStatus        ExecutionMode = "report_status"
	ModeRecoverImportState  ExecutionMode = "recover_import_state"
	ModeRecoverMigrateState ExecutionMode = "recover_migrate_state"
)

// ExitCode is the dispatcher's process exit status.
type ExitCode int

const (
	ExitSuccess         ExitCode = 0
	ExitError           ExitCode = 1
	ExitUnexpectedError ExitCode = 2
	ExitInterrupted     ExitCode = 130
)

// ReportSnapshot is a point-in-time view of the three data sources used by
// the Reporter.
type ReportSnapshot struct {
	GeneratedAt  time.Time
	FilesystemRuns   []int
	ConfigStoreRuns  []int
	ArchiveStoreRuns []int
}
