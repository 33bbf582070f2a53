package application

import (
	"context"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
)

// QueryService serves read access to run history and current status
type QueryService struct {
	runs     domain.RunRepository
	statuses domain.StatusRepository
}

// NewQueryService builds the read side
func NewQueryService(runs domain.RunRepository, statuses domain.StatusRepository) *QueryService {
	return &QueryService{runs: runs, statuses: statuses}
}

// History returns recorded runs newest-first, up to limit (0 means all
// retained)
func (s *QueryService) History(ctx context.Context, limit int) ([]RunSummaryDTO, error) {
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunSummaryDTO, len(runs))
	for i, r := range runs {
		out[i] = ToRunSummaryDTO(r)
	}
	return out, nil
}

// Status returns the current poller-facing status
func (s *QueryService) Status(ctx context.Context) (StatusDTO, error) {
	status, err := s.statuses.Read(ctx)
	if err != nil {
		return StatusDTO{}, err
	}
	return ToStatusDTO(status), nil
}
