package analysis

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("analysis not found")

// Repository port for persisting and querying analyses
type Repository interface {
	Save(ctx context.Context, r *Result) error
	Get(ctx context.Context, userID string, id ResultID) (*Result, error)
	// GetByImage returns nil, nil when the image has no analysis yet.
	GetByImage(ctx context.Context, userID, imageID string) (*Result, error)
	Paginate(ctx context.Context, userID string, page, pageSize int) (PaginatedResult, error)
	Summary(ctx context.Context, userID string, sinceDays int) (RiskSummary, error)
}
