package domain

import "time"

// DomainEvent is implemented by all batch run lifecycle events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// RunStartedEvent is published when a batch run begins
type RunStartedEvent struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
}

func (e RunStartedEvent) EventType() string     { return "shipping.batch.run.started" }
func (e RunStartedEvent) OccurredAt() time.Time { return e.StartedAt }

// RunCompletedEvent is published when a batch run reaches its successful
// terminal state
type RunCompletedEvent struct {
	RunID               string    `json:"runId"`
	FinishedAt          time.Time `json:"finishedAt"`
	TotalOrders         int       `json:"totalOrders"`
	CancelledDuplicates int       `json:"cancelledDuplicates"`
	Shipped             int       `json:"shipped"`
	Failed              int       `json:"failed"`
	Skipped             int       `json:"skipped"`
	LabelFiles          int       `json:"labelFiles"`
	ManifestGenerated   bool      `json:"manifestGenerated"`
}

func (e RunCompletedEvent) EventType() string     { return "shipping.batch.run.completed" }
func (e RunCompletedEvent) OccurredAt() time.Time { return e.FinishedAt }

// RunFailedEvent is published when a batch run aborts on a fatal error
type RunFailedEvent struct {
	RunID      string    `json:"runId"`
	FinishedAt time.Time `json:"finishedAt"`
	Phase      Phase     `json:"phase"`
	Reason     string    `json:"reason"`
}

func (e RunFailedEvent) EventType() string     { return "shipping.batch.run.failed" }
func (e RunFailedEvent) OccurredAt() time.Time { return e.FinishedAt }

// NewRunCompletedEvent builds the completion event from a terminal run
func NewRunCompletedEvent(run *BatchRun) RunCompletedEvent {
	return RunCompletedEvent{
		RunID:               run.RunID,
		FinishedAt:          run.FinishedAt,
		TotalOrders:         run.TotalOrders,
		CancelledDuplicates: run.CancelledDuplicates,
		Shipped:             run.Shipped,
		Failed:              run.Failed,
		Skipped:             run.Skipped,
		LabelFiles:          run.LabelSummary.TotalFiles(),
		ManifestGenerated:   run.ManifestGenerated,
	}
}

// NewRunFailedEvent builds the failure event from a terminal run
func NewRunFailedEvent(run *BatchRun, reason string) RunFailedEvent {
	return RunFailedEvent{
		RunID:      run.RunID,
		FinishedAt: run.FinishedAt,
		Phase:      run.Phase,
		Reason:     reason,
	}
}
