package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := map[string]Phase{
		"completed": PhaseCompleted,
		"failed":    PhaseFailed,
		"canceled":  PhaseCanceled,
		"running":   PhasePolling,
		"unknown":   PhasePolling,
		"":          PhasePolling,
		"queued":    PhasePolling,
		"COMPLETED": PhasePolling,
		"cancelled": PhasePolling,
	}
	for status, want := range tests {
		if got := Classify(status); got != want {
			t.Errorf("Classify(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestPhaseString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "timed_out", PhaseTimedOut.String())
	assert.Equal(t, "canceled_by_caller", PhaseCanceledByCaller.String())
	assert.Equal(t, "unknown", Phase(99).String())
	assert.False(t, PhasePolling.Final())
	assert.True(t, PhaseAborted.Final())
}

func TestTracker_CompletesWithinBudget(t *testing.T) {
	t.Parallel()
	tr := NewTracker(5)
	require.NoError(t, tr.Submitted("job-1"))
	assert.Equal(t, PhasePolling, tr.Phase())

	require.True(t, tr.Next())
	assert.Equal(t, PhasePolling, tr.Observe("RUNNING"))
	require.True(t, tr.Next())
	assert.Equal(t, PhaseCompleted, tr.Observe(" Completed"))

	assert.True(t, tr.Done())
	assert.False(t, tr.Next())
	assert.Equal(t, State{JobID: "job-1", Status: "completed", Attempts: 2}, tr.State())
}

func TestTracker_TimesOutAfterBudget(t *testing.T) {
	t.Parallel()
	tr := NewTracker(3)
	require.NoError(t, tr.Submitted("job-1"))

	for i := 0; i < 3; i++ {
		require.True(t, tr.Next())
		tr.Observe("running")
	}
	assert.False(t, tr.HasNext())
	assert.False(t, tr.Next())
	assert.Equal(t, PhaseTimedOut, tr.Phase())
	assert.Equal(t, 3, tr.State().Attempts)
}

func TestTracker_Submitted(t *testing.T) {
	t.Parallel()
	tr := NewTracker(1)
	require.Error(t, tr.Submitted(""))
	require.NoError(t, tr.Submitted("a"))
	require.Error(t, tr.Submitted("b"))
	assert.Equal(t, "a", tr.State().JobID)
}

func TestTracker_NoPollBeforeSubmit(t *testing.T) {
	t.Parallel()
	tr := NewTracker(3)
	assert.False(t, tr.Next())
	assert.Equal(t, PhaseSubmitting, tr.Observe("completed"))
}

func TestTracker_FinalPhasesStick(t *testing.T) {
	t.Parallel()
	tr := NewTracker(3)
	require.NoError(t, tr.Submitted("a"))
	require.True(t, tr.Next())
	tr.Observe("failed")

	tr.CancelByCaller()
	tr.Abort()
	assert.Equal(t, PhaseFailed, tr.Phase())
	assert.Equal(t, PhaseFailed, tr.Observe("completed"))

	other := NewTracker(3)
	other.CancelByCaller()
	assert.Equal(t, PhaseCanceledByCaller, other.Phase())
	other.Abort()
	assert.Equal(t, PhaseCanceledByCaller, other.Phase())
}
