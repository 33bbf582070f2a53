package temporalclient

import (
	"context"
	"errors"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/shipstream-platform/batch-shipping-service/internal/workflows"
	apperrors "github.com/shipstream-platform/batch-shipping-service/pkg/errors"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
)

// batchRunWorkflowID is fixed so Temporal itself rejects a second run while
// one is executing.
const batchRunWorkflowID = "batch-shipping-run"

// WorkflowTrigger starts batch runs as Temporal workflow executions
type WorkflowTrigger struct {
	client client.Client
	logger *logging.Logger
}

// NewWorkflowTrigger builds a trigger over an existing Temporal client
func NewWorkflowTrigger(c client.Client, logger *logging.Logger) *WorkflowTrigger {
	return &WorkflowTrigger{client: c, logger: logger}
}

// Trigger starts the batch shipping workflow and returns its run ID
func (t *WorkflowTrigger) Trigger(ctx context.Context, triggeredBy string) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        batchRunWorkflowID,
		TaskQueue: workflows.TaskQueue,
	}

	we, err := t.client.ExecuteWorkflow(ctx, opts, workflows.BatchShippingWorkflowName,
		workflows.BatchShippingWorkflowInput{TriggeredBy: triggeredBy})
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return "", apperrors.ErrRunInProgress()
		}
		return "", apperrors.ErrInternal("failed to start batch run workflow").Wrap(err)
	}

	t.logger.WorkflowStart(workflows.BatchShippingWorkflowName, we.GetID())
	return we.GetRunID(), nil
}
