package domain

import (
	"fmt"
	"time"
)

// Run errors
var (
	ErrInvalidPhaseTransition = fmt.Errorf("invalid run phase transition")
	ErrRunAlreadyRecorded     = fmt.Errorf("batch run already recorded")
)

// Phase represents a stage of the batch shipping run. Transitions are
// strictly sequential and forward-only; there is no retry edge.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseAuthenticating      Phase = "authenticating"
	PhaseFetchingOrders      Phase = "fetching_orders"
	PhaseResolvingDuplicates Phase = "resolving_duplicates"
	PhaseCancelling          Phase = "cancelling"
	PhaseDispatching         Phase = "dispatching"
	PhaseLabeling            Phase = "labeling"
	PhaseSchedulingPickup    Phase = "scheduling_pickup"
	PhaseGeneratingManifest  Phase = "generating_manifest"
	PhaseRecording           Phase = "recording"
	PhaseComplete            Phase = "complete"
	PhaseError               Phase = "error"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:                0,
	PhaseAuthenticating:      1,
	PhaseFetchingOrders:      2,
	PhaseResolvingDuplicates: 3,
	PhaseCancelling:          4,
	PhaseDispatching:         5,
	PhaseLabeling:            6,
	PhaseSchedulingPickup:    7,
	PhaseGeneratingManifest:  8,
	PhaseRecording:           9,
	PhaseComplete:            10,
	PhaseError:               10,
}

// Progress returns the poller-facing progress percentage for the phase
func (p Phase) Progress() int {
	switch p {
	case PhaseIdle:
		return 0
	case PhaseAuthenticating:
		return 5
	case PhaseFetchingOrders:
		return 15
	case PhaseResolvingDuplicates:
		return 25
	case PhaseCancelling:
		return 35
	case PhaseDispatching:
		return 50
	case PhaseLabeling:
		return 70
	case PhaseSchedulingPickup:
		return 80
	case PhaseGeneratingManifest:
		return 90
	case PhaseRecording:
		return 95
	default:
		return 100
	}
}

// Terminal reports whether the phase is a terminal state
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// DispatchOutcome classifies a single dispatch attempt
type DispatchOutcome string

const (
	OutcomeShipped DispatchOutcome = "shipped"
	OutcomeFailed  DispatchOutcome = "failed"
	OutcomeSkipped DispatchOutcome = "skipped"
)

// AWBAssignment is the upstream's answer to one courier assignment request
type AWBAssignment struct {
	Assigned bool
	AWBCode  string
	Courier  string
	Reason   string
}

// DispatchResult records the outcome of one order's courier assignment attempt
type DispatchResult struct {
	OrderID        int64           `json:"orderId" bson:"orderId"`
	ChannelOrderID string          `json:"channelOrderId" bson:"channelOrderId"`
	ShipmentID     int64           `json:"shipmentId,omitempty" bson:"shipmentId,omitempty"`
	Outcome        DispatchOutcome `json:"outcome" bson:"outcome"`
	Reason         string          `json:"reason,omitempty" bson:"reason,omitempty"`
}

// LabelFile is one sorted label output file and its page count
type LabelFile struct {
	File  string `json:"file" bson:"file"`
	Pages int    `json:"pages" bson:"pages"`
}

// LabelSummary organizes sorted label files as SKU -> courier -> file
type LabelSummary map[string]map[string]LabelFile

// TotalFiles returns the number of label files across all SKUs
func (s LabelSummary) TotalFiles() int {
	n := 0
	for _, couriers := range s {
		n += len(couriers)
	}
	return n
}

// SKUs returns the SKU keys touched by the run
func (s LabelSummary) SKUs() []string {
	out := make([]string, 0, len(s))
	for sku := range s {
		out = append(out, sku)
	}
	return out
}

// BatchRun is the result aggregate for one end-to-end workflow invocation.
// It is created at orchestration start, mutated by every stage, persisted
// exactly once at the end, and never mutated after persistence.
type BatchRun struct {
	RunID       string    `json:"runId" bson:"runId"`
	StartedAt   time.Time `json:"startedAt" bson:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
	DateDisplay string    `json:"dateDisplay" bson:"dateDisplay"`
	Phase       Phase     `json:"phase" bson:"phase"`

	TotalOrders         int `json:"totalOrders" bson:"totalOrders"`
	CancelledDuplicates int `json:"cancelledDuplicates" bson:"cancelledDuplicates"`
	ToShip              int `json:"toShip" bson:"toShip"`
	Shipped             int `json:"shipped" bson:"shipped"`
	Failed              int `json:"failed" bson:"failed"`
	Skipped             int `json:"skipped" bson:"skipped"`
	PickupScheduled     int `json:"pickupScheduled" bson:"pickupScheduled"`

	DispatchResults  []DispatchResult `json:"dispatchResults" bson:"dispatchResults"`
	DuplicateDetails []string         `json:"duplicateDetails,omitempty" bson:"duplicateDetails,omitempty"`

	LabelsDownloaded  bool         `json:"labelsDownloaded" bson:"labelsDownloaded"`
	LabelSummary      LabelSummary `json:"labelSummary,omitempty" bson:"labelSummary,omitempty"`
	ManifestGenerated bool         `json:"manifestGenerated" bson:"manifestGenerated"`
	ManifestFile      string       `json:"manifestFile,omitempty" bson:"manifestFile,omitempty"`
	CancelledExport   string       `json:"cancelledExport,omitempty" bson:"cancelledExport,omitempty"`

	Errors  []string `json:"errors,omitempty" bson:"errors,omitempty"`
	Details []string `json:"details" bson:"details"`

	recorded bool
}

// NewBatchRun creates a run aggregate in the idle phase
func NewBatchRun(runID string, now time.Time) *BatchRun {
	return &BatchRun{
		RunID:       runID,
		StartedAt:   now,
		DateDisplay: now.Format("Jan 02, 2006 03:04 PM"),
		Phase:       PhaseIdle,
		Details:     []string{},
	}
}

// Advance transitions the run to the given phase. Backward edges are
// rejected; the run is a forward-only state machine.
func (r *BatchRun) Advance(phase Phase) error {
	if r.Phase.Terminal() {
		return ErrInvalidPhaseTransition
	}
	if phaseOrder[phase] < phaseOrder[r.Phase] {
		return ErrInvalidPhaseTransition
	}
	r.Phase = phase
	return nil
}

// RecordDispatch applies one dispatch attempt's outcome to the counts
func (r *BatchRun) RecordDispatch(res DispatchResult) {
	r.DispatchResults = append(r.DispatchResults, res)
	switch res.Outcome {
	case OutcomeShipped:
		r.Shipped++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// AddError records a non-fatal stage error
func (r *BatchRun) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AddDetail appends a progress detail line
func (r *BatchRun) AddDetail(format string, args ...any) {
	r.Details = append(r.Details, fmt.Sprintf(format, args...))
}

// CountsConsistent verifies shipped + failed + skipped == orders considered
// for dispatch.
func (r *BatchRun) CountsConsistent() bool {
	return r.Shipped+r.Failed+r.Skipped == r.ToShip
}

// Complete moves the run to its successful terminal state
func (r *BatchRun) Complete(now time.Time) {
	r.Phase = PhaseComplete
	r.FinishedAt = now
}

// Fail moves the run to its error terminal state, recording the fatal reason
func (r *BatchRun) Fail(now time.Time, reason string) {
	r.Phase = PhaseError
	r.FinishedAt = now
	r.Errors = append(r.Errors, reason)
}

// MarkRecorded flags the run as persisted. A second persistence attempt is an
// error: the aggregate must never be mutated or re-written after recording.
func (r *BatchRun) MarkRecorded() error {
	if r.recorded {
		return ErrRunAlreadyRecorded
	}
	r.recorded = true
	return nil
}

// Recorded reports whether the run has been persisted
func (r *BatchRun) Recorded() bool {
	return r.recorded
}

// TouchedSKUs returns the SKUs present in the run's label summary
func (r *BatchRun) TouchedSKUs() []string {
	return r.LabelSummary.SKUs()
}
