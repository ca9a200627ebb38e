package job

import (
	"context"
	"log/slog"
)

// SubmittedEvent describes a successful launch.
type SubmittedEvent struct {
	JobID      string
	ResourceID string
	Payload    any // decoded launch response
}

// PollEvent describes one poll attempt. Exactly one of Payload and Err is
// meaningful.
type PollEvent struct {
	JobID       string
	Attempt     int
	MaxAttempts int
	Status      string // normalized; empty when the poll failed
	Payload     any
	Err         error
	Fatal       bool // Err ends the run
}

// Reporter receives lifecycle events from the driver. Calls are made from
// the driver goroutine in order.
type Reporter interface {
	JobSubmitted(ctx context.Context, ev SubmittedEvent)
	PollCompleted(ctx context.Context, ev PollEvent)
	JobFinished(ctx context.Context, res *Result)
}

// Reporters fans events out to several reporters in order.
type Reporters []Reporter

func (rs Reporters) JobSubmitted(ctx context.Context, ev SubmittedEvent) {
	for _, r := range rs {
		r.JobSubmitted(ctx, ev)
	}
}

func (rs Reporters) PollCompleted(ctx context.Context, ev PollEvent) {
	for _, r := range rs {
		r.PollCompleted(ctx, ev)
	}
}

func (rs Reporters) JobFinished(ctx context.Context, res *Result) {
	for _, r := range rs {
		r.JobFinished(ctx, res)
	}
}

// LogReporter writes lifecycle events to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter. A nil logger uses the default logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger.With("component", "job")}
}

func (r *LogReporter) JobSubmitted(ctx context.Context, ev SubmittedEvent) {
	r.logger.InfoContext(ctx, "Job submitted",
		"job_id", ev.JobID,
		"resource_id", ev.ResourceID,
		"response", ev.Payload,
	)
}

func (r *LogReporter) PollCompleted(ctx context.Context, ev PollEvent) {
	if ev.Err != nil {
		level := slog.LevelWarn
		msg := "Poll failed, will retry"
		if ev.Fatal {
			level = slog.LevelError
			msg = "Poll failed"
		}
		r.logger.Log(ctx, level, msg,
			"job_id", ev.JobID,
			"attempt", ev.Attempt,
			"max_attempts", ev.MaxAttempts,
			"error", ev.Err,
		)
		return
	}
	r.logger.InfoContext(ctx, "Job status",
		"job_id", ev.JobID,
		"attempt", ev.Attempt,
		"max_attempts", ev.MaxAttempts,
		"state", ev.Status,
		"response", ev.Payload,
	)
}

func (r *LogReporter) JobFinished(ctx context.Context, res *Result) {
	attrs := []any{
		"job_id", res.JobID,
		"outcome", res.Phase.String(),
		"attempts", res.Attempts,
	}
	switch res.Phase {
	case PhaseCompleted:
		r.logger.InfoContext(ctx, "Job completed", attrs...)
	case PhaseFailed, PhaseCanceled:
		r.logger.WarnContext(ctx, "Job ended unsuccessfully", append(attrs, "state", res.Status)...)
	case PhaseTimedOut:
		r.logger.WarnContext(ctx, "Job did not reach a terminal state",
			append(attrs, "max_attempts", res.MaxAttempts, "interval", res.PollInterval)...)
	case PhaseCanceledByCaller:
		r.logger.WarnContext(ctx, "Polling canceled by caller", append(attrs, "cancel_sent", res.CancelSent)...)
	default:
		r.logger.ErrorContext(ctx, "Job run aborted", append(attrs, "error", res.Err)...)
	}
}

var (
	_ Reporter = (*LogReporter)(nil)
	_ Reporter = Reporters(nil)
)
