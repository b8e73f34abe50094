package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrUnknownJobType is returned for messages the worker does not handle.
var ErrUnknownJobType = errors.New("unknown job type")

// JobHandler dispatches job messages to the recalculation job.
type JobHandler struct {
	job    *RecalculateJob
	logger zerolog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(job *RecalculateJob, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		job:    job,
		logger: logger,
	}
}

// Handle runs the job described by msg.
func (h *JobHandler) Handle(ctx context.Context, msg JobMessage) (*RecalculateResult, error) {
	switch msg.JobType {
	case JobTypeRecalculate:
		return h.recalculate(ctx, msg.RouteIDs)
	case JobTypeCatalogUpdated:
		h.logger.Info().Msg("factor catalog changed, recalculating all routes")
		return h.recalculate(ctx, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}

func (h *JobHandler) recalculate(ctx context.Context, routeIDs []string) (*RecalculateResult, error) {
	result, err := h.job.Run(ctx, routeIDs)
	if err != nil {
		return result, err
	}

	// Consider it successful unless most routes failed.
	if result.Failed > result.Successful {
		return result, fmt.Errorf("too many recalculation failures: %d/%d", result.Failed, result.TotalRoutes)
	}
	return result, nil
}
