package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/shipstream-platform/batch-shipping-service/internal/activities"
)

const (
	// TaskQueue is the task queue batch shipping workers poll
	TaskQueue = "batch-shipping-task-queue"

	// BatchShippingWorkflowName is the registered workflow type name
	BatchShippingWorkflowName = "BatchShippingWorkflow"

	batchRunTimeout = 30 * time.Minute
)

// BatchShippingWorkflowInput represents the input for a batch shipping run
type BatchShippingWorkflowInput struct {
	TriggeredBy string `json:"triggeredBy"`
}

// BatchShippingWorkflow executes one batch shipping run as a single
// activity. The run mutates external systems (order cancellation, AWB
// assignment) so the activity must not retry: a failed run is recorded in
// history and the next run starts fresh.
func BatchShippingWorkflow(ctx workflow.Context, input BatchShippingWorkflowInput) (*activities.BatchRunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch shipping workflow", "triggeredBy", input.TriggeredBy)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: batchRunTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *activities.BatchActivities
	var result activities.BatchRunResult
	if err := workflow.ExecuteActivity(ctx, a.ExecuteBatchRun).Get(ctx, &result); err != nil {
		logger.Error("Batch shipping run failed", "error", err)
		return &result, err
	}

	logger.Info("Batch shipping workflow complete",
		"runId", result.RunID,
		"shipped", result.Shipped,
		"failed", result.Failed,
	)
	return &result, nil
}
