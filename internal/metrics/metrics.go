// Package metrics exposes runtime counters via expvar and, when configured,
// mirrors them to OpenTelemetry.
package metrics

import (
	"context"
	"expvar"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	RunsImported         = expvar.NewInt("runs_imported_total")
	RunsImportFailed     = expvar.NewInt("runs_import_failed_total")
	RunsMigrated         = expvar.NewInt("runs_migrated_total")
	RunsMigrateFailed    = expvar.NewInt("runs_migrate_failed_total")
	RunsSkippedPermanent = expvar.NewInt("runs_permanent_skip_total")
	RetriesScheduled     = expvar.NewInt("retries_scheduled_total")
	BlobsPacked          = expvar.NewInt("blobs_packed_total")
	BlobUploadIdempotent = expvar.NewInt("blob_upload_idempotent_total")
	VerificationMismatch = expvar.NewInt("verification_mismatch_total")
	LockWatcherFailures  = expvar.NewInt("lock_watcher_failures_total")
)

// OTel mirrors the expvar counters above as OpenTelemetry instruments, when
// a Meter is configured. It is optional: callers that do not wire an OTel
// MeterProvider simply skip OTel export and keep the expvar counters.
type OTel struct {
	runsImported      metric.Int64Counter
	runsMigrated      metric.Int64Counter
	retriesScheduled  metric.Int64Counter
}

// NewOTel builds OTel counters from the given Meter. Returns nil, nil if
// meter is nil.
func NewOTel(meter metric.Meter) (*OTel, error) {
	if meter == nil {
		return nil, nil
	}
	ri, err := meter.Int64Counter("rrarchiver.runs_imported")
	if err != nil {
		return nil, err
	}
	rm, err := meter.Int64Counter("rrarchiver.runs_migrated")
	if err != nil {
		return nil, err
	}
	rs, err := meter.Int64Counter("rrarchiver.retries_scheduled")
	if err != nil {
		return nil, err
	}
	return &OTel{runsImported: ri, runsMigrated: rm, retriesScheduled: rs}, nil
}

func (o *OTel) AddImported(ctx context.Context, n int64) {
	if o == nil {
		return
	}
	o.runsImported.Add(ctx, n)
}

func (o *OTel) AddMigrated(ctx context.Context, n int64) {
	if o == nil {
		return
	}
	o.runsMigrated.Add(ctx, n)
}

func (o *OTel) AddRetriesScheduled(ctx context.Context, n int64) {
	if o == nil {
		return
	}
	o.retriesScheduled.Add(ctx, n)
}

// Timed runs fn and logs its duration at debug level as "stage.op
// duration_ms".
func Timed(logger *slog.Logger, stage, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	logger.Debug("timed operation", "stage", stage, "op", op, "duration_ms", time.Since(start).Milliseconds())
	return err
}
