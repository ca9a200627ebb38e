package job

import "fmt"

// Phase is the lifecycle position of a tracked job.
type Phase int

const (
	PhaseSubmitting Phase = iota
	PhasePolling
	PhaseCompleted
	PhaseFailed
	PhaseCanceled
	PhaseTimedOut
	PhaseCanceledByCaller
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhasePolling:
		return "polling"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseCanceled:
		return "canceled"
	case PhaseTimedOut:
		return "timed_out"
	case PhaseCanceledByCaller:
		return "canceled_by_caller"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Final reports whether no further transitions are possible.
func (p Phase) Final() bool {
	return p != PhaseSubmitting && p != PhasePolling
}

// Classify maps a normalized status to the phase it leads to. Unrecognized
// and empty statuses keep the job polling.
func Classify(status string) Phase {
	switch status {
	case StatusCompleted:
		return PhaseCompleted
	case StatusFailed:
		return PhaseFailed
	case StatusCanceled:
		return PhaseCanceled
	default:
		return PhasePolling
	}
}

// State is the observable progress of a tracked job.
type State struct {
	JobID    string
	Status   string // last observed status, normalized
	Attempts int    // poll attempts started
}

// Tracker holds the transition rules of one job run without doing any I/O:
//
//	Submitting -> Polling -> {Completed, Failed, Canceled, TimedOut}
//
// plus CanceledByCaller and Aborted, reachable from Submitting and Polling.
// It is not safe for concurrent use.
type Tracker struct {
	maxAttempts int
	phase       Phase
	state       State
}

// NewTracker creates a tracker allowing up to maxAttempts polls.
func NewTracker(maxAttempts int) *Tracker {
	return &Tracker{maxAttempts: max(maxAttempts, 0)}
}

// Submitted records the job id returned by the launch and starts polling.
func (t *Tracker) Submitted(jobID string) error {
	if t.phase != PhaseSubmitting {
		return fmt.Errorf("cannot submit in phase %s", t.phase)
	}
	if jobID == "" {
		return fmt.Errorf("job id is empty")
	}
	t.state.JobID = jobID
	t.phase = PhasePolling
	return nil
}

// Next starts another poll attempt. It returns false when the tracker is not
// polling, and moves to TimedOut once the attempt budget is spent.
func (t *Tracker) Next() bool {
	if t.phase != PhasePolling {
		return false
	}
	if t.state.Attempts >= t.maxAttempts {
		t.phase = PhaseTimedOut
		return false
	}
	t.state.Attempts++
	return true
}

// HasNext reports whether another attempt fits in the budget.
func (t *Tracker) HasNext() bool {
	return t.phase == PhasePolling && t.state.Attempts < t.maxAttempts
}

// Observe records a successful poll and returns the resulting phase.
func (t *Tracker) Observe(status string) Phase {
	if t.phase != PhasePolling {
		return t.phase
	}
	t.state.Status = NormalizeStatus(status)
	t.phase = Classify(t.state.Status)
	return t.phase
}

// CancelByCaller ends the run because the caller gave up.
func (t *Tracker) CancelByCaller() {
	if !t.phase.Final() {
		t.phase = PhaseCanceledByCaller
	}
}

// Abort ends the run because of an unrecoverable error.
func (t *Tracker) Abort() {
	if !t.phase.Final() {
		t.phase = PhaseAborted
	}
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	return t.phase
}

// State returns a snapshot of the tracked state.
func (t *Tracker) State() State {
	return t.state
}

// Done reports whether the run has ended.
func (t *Tracker) Done() bool {
	return t.phase.Final()
}
