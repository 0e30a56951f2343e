package pipeline

import (
	"context"

	"github.com/tjfontaine/appointment-gateway/internal/domain"
)

// Scheduler posts a finalized appointment to the scheduling endpoint.
type Scheduler struct {
	backend Caller
}

// NewScheduler creates a scheduler that calls the processing service through
// backend.
func NewScheduler(backend Caller) *Scheduler {
	return &Scheduler{backend: backend}
}

// Schedule sends the finalize result, unchanged, as the scheduling request.
// The scheduling response is returned for logging only; callers surface the
// appointment, not the schedule receipt.
func (s *Scheduler) Schedule(ctx context.Context, appointment domain.StageResult) (domain.StageResult, error) {
	return s.backend.CallRaw(ctx, StageSchedule, PathSchedule, passthrough(appointment))
}
