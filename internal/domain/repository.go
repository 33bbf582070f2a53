package domain

import "context"

// RunHistoryRetention bounds the stored run history. Appending the 101st
// run evicts the oldest.
const RunHistoryRetention = 100

// RunRepository persists completed batch runs
type RunRepository interface {
	// Append stores a finished run and trims history to the retention bound
	Append(ctx context.Context, run *BatchRun) error

	// List returns stored runs newest-first, up to limit (0 means all)
	List(ctx context.Context, limit int) ([]*BatchRun, error)
}

// StatusRepository persists the single poller-facing status record
type StatusRepository interface {
	Write(ctx context.Context, status RunStatus) error
	Read(ctx context.Context) (RunStatus, error)
}
