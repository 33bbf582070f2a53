package application

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/shipstream-platform/batch-shipping-service/pkg/errors"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
)

// LocalTrigger runs batch runs in-process, for deployments without a
// workflow engine. It claims the runner's single run slot before spawning
// the goroutine, so a 202 means the run actually started.
type LocalTrigger struct {
	runner *BatchRunner
	logger *logging.Logger
}

// NewLocalTrigger builds an in-process trigger
func NewLocalTrigger(runner *BatchRunner, logger *logging.Logger) *LocalTrigger {
	return &LocalTrigger{runner: runner, logger: logger}
}

// Trigger starts a run in a background goroutine and returns a tracking id.
// The run outlives the HTTP request, so it gets a fresh context.
func (t *LocalTrigger) Trigger(_ context.Context, triggeredBy string) (string, error) {
	if !t.runner.tryAcquire() {
		return "", apperrors.ErrRunInProgress()
	}

	id := "local-" + uuid.NewString()
	go func() {
		defer t.runner.release()
		if _, err := t.runner.runHeld(context.Background()); err != nil {
			t.logger.WithError(err).Error("batch run failed", "triggered_by", triggeredBy)
		}
	}()
	return id, nil
}
