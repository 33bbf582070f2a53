package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/shipstream-platform/batch-shipping-service/internal/application"
	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
)

// BatchActivities contains activities for the batch shipping workflow
type BatchActivities struct {
	runner *application.BatchRunner
}

// NewBatchActivities creates a new BatchActivities instance
func NewBatchActivities(runner *application.BatchRunner) *BatchActivities {
	return &BatchActivities{runner: runner}
}

// BatchRunResult summarizes one completed batch run for the workflow caller
type BatchRunResult struct {
	RunID               string    `json:"runId"`
	Phase               string    `json:"phase"`
	StartedAt           time.Time `json:"startedAt"`
	FinishedAt          time.Time `json:"finishedAt"`
	TotalOrders         int       `json:"totalOrders"`
	CancelledDuplicates int       `json:"cancelledDuplicates"`
	Shipped             int       `json:"shipped"`
	Failed              int       `json:"failed"`
	Skipped             int       `json:"skipped"`
	PickupScheduled     int       `json:"pickupScheduled"`
	LabelFiles          int       `json:"labelFiles"`
	ManifestGenerated   bool      `json:"manifestGenerated"`
	Errors              []string  `json:"errors,omitempty"`
}

// ExecuteBatchRun runs one complete batch shipping cycle. The runner owns
// pacing, progress reporting and run recording; the activity is a single
// unit of work so the workflow history stays small and a retry never
// replays half a run.
func (a *BatchActivities) ExecuteBatchRun(ctx context.Context) (*BatchRunResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Executing batch shipping run")

	run, err := a.runner.Run(ctx)
	if run == nil {
		return nil, err
	}

	result := toResult(run)
	if err != nil {
		logger.Error("Batch run failed", "runId", run.RunID, "error", err)
		return result, err
	}
	logger.Info("Batch run complete",
		"runId", run.RunID,
		"shipped", run.Shipped,
		"failed", run.Failed,
	)
	return result, nil
}

func toResult(run *domain.BatchRun) *BatchRunResult {
	return &BatchRunResult{
		RunID:               run.RunID,
		Phase:               string(run.Phase),
		StartedAt:           run.StartedAt,
		FinishedAt:          run.FinishedAt,
		TotalOrders:         run.TotalOrders,
		CancelledDuplicates: run.CancelledDuplicates,
		Shipped:             run.Shipped,
		Failed:              run.Failed,
		Skipped:             run.Skipped,
		PickupScheduled:     run.PickupScheduled,
		LabelFiles:          run.LabelSummary.TotalFiles(),
		ManifestGenerated:   run.ManifestGenerated,
		Errors:              run.Errors,
	}
}
