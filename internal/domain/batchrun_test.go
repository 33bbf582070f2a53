package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRun_AdvanceForwardOnly(t *testing.T) {
	run := NewBatchRun("run-1", time.Now())

	require.NoError(t, run.Advance(PhaseAuthenticating))
	require.NoError(t, run.Advance(PhaseFetchingOrders))
	require.NoError(t, run.Advance(PhaseDispatching))

	// backward edge rejected
	err := run.Advance(PhaseAuthenticating)
	assert.ErrorIs(t, err, ErrInvalidPhaseTransition)
	assert.Equal(t, PhaseDispatching, run.Phase)
}

func TestBatchRun_TerminalPhaseIsFinal(t *testing.T) {
	run := NewBatchRun("run-2", time.Now())
	run.Complete(time.Now())

	assert.True(t, run.Phase.Terminal())
	assert.ErrorIs(t, run.Advance(PhaseRecording), ErrInvalidPhaseTransition)
}

func TestBatchRun_DispatchCountsConsistent(t *testing.T) {
	run := NewBatchRun("run-3", time.Now())
	run.ToShip = 4

	run.RecordDispatch(DispatchResult{OrderID: 1, Outcome: OutcomeShipped})
	run.RecordDispatch(DispatchResult{OrderID: 2, Outcome: OutcomeShipped})
	run.RecordDispatch(DispatchResult{OrderID: 3, Outcome: OutcomeFailed, Reason: "no courier serviceable"})
	run.RecordDispatch(DispatchResult{OrderID: 4, Outcome: OutcomeSkipped, Reason: "missing shipment"})

	assert.Equal(t, 2, run.Shipped)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Skipped)
	assert.True(t, run.CountsConsistent())
	assert.Len(t, run.DispatchResults, 4)
}

func TestBatchRun_RecordedExactlyOnce(t *testing.T) {
	run := NewBatchRun("run-4", time.Now())
	run.Complete(time.Now())

	require.NoError(t, run.MarkRecorded())
	assert.True(t, run.Recorded())
	assert.ErrorIs(t, run.MarkRecorded(), ErrRunAlreadyRecorded)
}

func TestBatchRun_FailRecordsReason(t *testing.T) {
	run := NewBatchRun("run-5", time.Now())
	require.NoError(t, run.Advance(PhaseAuthenticating))

	run.Fail(time.Now(), "authentication failed: no token in response")

	assert.Equal(t, PhaseError, run.Phase)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "no token")
}

func TestPhase_Progress(t *testing.T) {
	assert.Equal(t, 0, PhaseIdle.Progress())
	assert.Equal(t, 100, PhaseComplete.Progress())
	assert.Equal(t, 100, PhaseError.Progress())

	prev := -1
	for _, p := range []Phase{
		PhaseIdle, PhaseAuthenticating, PhaseFetchingOrders, PhaseResolvingDuplicates,
		PhaseCancelling, PhaseDispatching, PhaseLabeling, PhaseSchedulingPickup,
		PhaseGeneratingManifest, PhaseRecording, PhaseComplete,
	} {
		assert.Greaterf(t, p.Progress(), prev, "progress must increase at %s", p)
		prev = p.Progress()
	}
}

func TestLabelSummary_TotalFiles(t *testing.T) {
	s := LabelSummary{
		"WIDGET-RED": {
			"Delhivery": {File: "a.pdf", Pages: 3},
			"Ekart":     {File: "b.pdf", Pages: 1},
		},
		"GADGET-XL": {
			"BlueDart": {File: "c.pdf", Pages: 2},
		},
	}
	assert.Equal(t, 3, s.TotalFiles())
	assert.ElementsMatch(t, []string{"WIDGET-RED", "GADGET-XL"}, s.SKUs())
}
