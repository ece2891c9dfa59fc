// Package notify dispatches a consolidated failure notification at the end
// of a stage run to whichever sinks the reporting configuration enables.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fnal-sbnd/rrarchiver/internal/config"
)

// Summary is the consolidated, per-stage notification payload.
type Summary struct {
	Stage      string
	Successful int
	Failed     []int
	NotStarted []int
}

func (s Summary) empty() bool { return len(s.Failed) == 0 && len(s.NotStarted) == 0 }

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, summary Summary) error
	Name() string
}

// Dispatcher routes a stage's failure summary to every configured sink,
// logging rather than failing the run on delivery error — notification
// failures are kind "reporting", swallowed by design.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher builds a Dispatcher from the reporting configuration
// section. A zero-value ReportingConfig yields a Dispatcher with no sinks,
// so Dispatch is always safe to call.
func NewDispatcher(cfg config.ReportingConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	if cfg.SendEmailOnError {
		d.sinks = append(d.sinks, NewEmailSink(cfg))
	}
	if cfg.WebhookURL != "" {
		d.sinks = append(d.sinks, NewWebhookSink(cfg.WebhookURL))
	}
	return d
}

// Dispatch sends summary to every sink unless it carries no failures, in
// which case there is nothing to report.
func (d *Dispatcher) Dispatch(ctx context.Context, summary Summary) {
	if summary.empty() {
		return
	}
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, summary); err != nil {
			d.logger.Error("notify: sink delivery failed", "sink", sink.Name(), "stage", summary.Stage, "error", err)
		}
	}
}

func formatBody(summary Summary) string {
	return fmt.Sprintf("stage=%s successful=%d failed=%v not_started=%v",
		summary.Stage, summary.Successful, summary.Failed, summary.NotStarted)
}
