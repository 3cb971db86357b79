package pipelineerrors

import (
	"context"
)

// Repository defines persistence for pipeline errors
type Repository interface {
	Save(ctx context.Context, e *PipelineError) error
	ListByImage(ctx context.Context, userID, imageID string, limit int) ([]*PipelineError, error)
}
