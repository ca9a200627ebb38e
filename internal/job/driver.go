// Package job submits a compute job through the operation dispatcher and
// polls its status until it reaches a terminal state, the poll budget runs
// out or the caller gives up.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"iriclient/internal/apperrors"
	"iriclient/internal/dispatcher"
)

// Caller invokes catalog operations. *dispatcher.Dispatcher implements it.
type Caller interface {
	CallOperation(ctx context.Context, call dispatcher.CallRequest) (any, error)
}

// Waiter blocks for d or until ctx is done, returning ctx.Err() in the
// latter case. Hosts with their own scheduler can supply one.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimerWaiter waits on a timer.
type TimerWaiter struct{}

func (TimerWaiter) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MetricsRecorder is an optional interface for recording job metrics.
type MetricsRecorder interface {
	RecordJobSubmitted(ctx context.Context)
	RecordPoll(ctx context.Context, state string, failed bool)
	RecordJobFinished(ctx context.Context, outcome string, submitted bool, durationSeconds float64)
}

// Result is the outcome of one run.
type Result struct {
	JobID        string
	ResourceID   string
	Phase        Phase
	Status       string // last observed status
	Attempts     int
	MaxAttempts  int
	PollInterval time.Duration
	LastPayload  any   // last successful status payload
	Err          error // set for Aborted runs
	CancelSent   bool  // the cancel operation was accepted after an interrupt
	Started      time.Time
	Finished     time.Time
}

// Succeeded reports whether the job completed.
func (r *Result) Succeeded() bool {
	return r.Phase == PhaseCompleted
}

// ExitCode maps the outcome to a process exit status: 0 completed, 2 failed
// or canceled by the server, 1 timed out or aborted, 130 interrupted.
func (r *Result) ExitCode() int {
	switch r.Phase {
	case PhaseCompleted:
		return 0
	case PhaseFailed, PhaseCanceled:
		return 2
	case PhaseCanceledByCaller:
		return 130
	default:
		return 1
	}
}

// Driver runs the submit and poll loop. A Driver holds no per-run state and
// may be reused, but runs are sequential by nature.
type Driver struct {
	caller   Caller
	cfg      Config
	waiter   Waiter
	reporter Reporter
	metrics  MetricsRecorder
	now      func() time.Time
	logger   *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithWaiter replaces the timer-based waiter.
func WithWaiter(w Waiter) DriverOption {
	return func(d *Driver) { d.waiter = w }
}

// WithReporter sets the event reporter (default: a LogReporter).
func WithReporter(r Reporter) DriverOption {
	return func(d *Driver) { d.reporter = r }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// NewDriver creates a driver for the given configuration.
func NewDriver(caller Caller, cfg Config, opts ...DriverOption) *Driver {
	d := &Driver{
		caller: caller,
		cfg:    cfg.WithDefaults(),
		waiter: TimerWaiter{},
		now:    time.Now,
		logger: slog.With("component", "job"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reporter == nil {
		d.reporter = NewLogReporter(nil)
	}
	return d
}

// Run launches spec and polls until the run ends. The returned error is
// non-nil only for Aborted runs; every other outcome, including
// cancellation by ctx, is reported through Result.Phase.
//
// ctx is checked before each attempt and during the wait between attempts.
// Requests themselves are not interrupted by ctx.
func (d *Driver) Run(ctx context.Context, spec any) (*Result, error) {
	tracker := NewTracker(d.cfg.MaxAttempts)
	res := &Result{
		ResourceID:   d.cfg.ResourceID,
		MaxAttempts:  d.cfg.MaxAttempts,
		PollInterval: d.cfg.PollInterval,
		Started:      d.now(),
	}
	reqCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		tracker.CancelByCaller()
		return d.finish(reqCtx, tracker, res, nil)
	}

	launch, err := d.caller.CallOperation(reqCtx, dispatcher.CallRequest{
		OperationID: d.cfg.LaunchOperation,
		PathParams:  map[string]string{"resource_id": d.cfg.ResourceID},
		Body:        spec,
	})
	if err != nil {
		tracker.Abort()
		return d.finish(reqCtx, tracker, res, fmt.Errorf("launch job: %w", err))
	}

	jobID, ok := JobID(launch, d.cfg.JobIDField)
	if !ok {
		tracker.Abort()
		return d.finish(reqCtx, tracker, res, apperrors.InvalidLaunchResponse(d.cfg.LaunchOperation, d.cfg.JobIDField, launch))
	}
	if err := tracker.Submitted(jobID); err != nil {
		tracker.Abort()
		return d.finish(reqCtx, tracker, res, err)
	}
	if d.metrics != nil {
		d.metrics.RecordJobSubmitted(reqCtx)
	}
	d.reporter.JobSubmitted(reqCtx, SubmittedEvent{JobID: jobID, ResourceID: d.cfg.ResourceID, Payload: launch})

	statusCall := dispatcher.CallRequest{
		OperationID: d.cfg.StatusOperation,
		PathParams:  map[string]string{"resource_id": d.cfg.ResourceID, "job_id": jobID},
	}

	for {
		// Cancellation only counts while another attempt is still due; a
		// spent budget times out even if ctx ended during the last poll.
		if tracker.HasNext() && ctx.Err() != nil {
			tracker.CancelByCaller()
			break
		}
		if !tracker.Next() {
			break
		}
		attempt := tracker.State().Attempts

		payload, err := d.caller.CallOperation(reqCtx, statusCall)
		ev := PollEvent{JobID: jobID, Attempt: attempt, MaxAttempts: d.cfg.MaxAttempts}
		if err != nil {
			ev.Err = err
			ev.Fatal = d.cfg.Policy.IsFatal(err)
			if d.metrics != nil {
				d.metrics.RecordPoll(reqCtx, "", true)
			}
			d.reporter.PollCompleted(reqCtx, ev)
			if ev.Fatal {
				tracker.Abort()
				return d.finish(reqCtx, tracker, res, fmt.Errorf("poll job %s: %w", jobID, err))
			}
		} else {
			tracker.Observe(StatusOf(payload))
			res.LastPayload = payload
			ev.Status = tracker.State().Status
			ev.Payload = payload
			if d.metrics != nil {
				d.metrics.RecordPoll(reqCtx, ev.Status, false)
			}
			d.reporter.PollCompleted(reqCtx, ev)
		}

		if tracker.Done() || !tracker.HasNext() {
			continue
		}
		if err := d.waiter.Wait(ctx, d.cfg.PollInterval); err != nil {
			tracker.CancelByCaller()
			break
		}
	}

	if tracker.Phase() == PhaseCanceledByCaller && d.cfg.CancelOnInterrupt {
		res.CancelSent = d.cancelJob(reqCtx, jobID)
	}
	return d.finish(reqCtx, tracker, res, nil)
}

// cancelJob asks the server to cancel a job the caller abandoned.
func (d *Driver) cancelJob(ctx context.Context, jobID string) bool {
	_, err := d.caller.CallOperation(ctx, dispatcher.CallRequest{
		OperationID: d.cfg.CancelOperation,
		PathParams:  map[string]string{"resource_id": d.cfg.ResourceID, "job_id": jobID},
	})
	if err != nil {
		d.logger.Warn("Failed to cancel job", "job_id", jobID, "error", err)
		return false
	}
	d.logger.Info("Cancel requested", "job_id", jobID)
	return true
}

func (d *Driver) finish(ctx context.Context, tracker *Tracker, res *Result, err error) (*Result, error) {
	state := tracker.State()
	res.JobID = state.JobID
	res.Status = state.Status
	res.Attempts = state.Attempts
	res.Phase = tracker.Phase()
	res.Err = err
	res.Finished = d.now()

	if d.metrics != nil {
		d.metrics.RecordJobFinished(ctx, res.Phase.String(), res.JobID != "", res.Finished.Sub(res.Started).Seconds())
	}
	d.reporter.JobFinished(ctx, res)
	return res, err
}
