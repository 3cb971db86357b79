package analysis

import (
	"context"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
	"github.com/bryanwahyu/mediscan/internal/domain/pipelineerrors"
)

// read side used by the HTTP handlers and the export

func (s *Service) LatestImages(ctx context.Context, userID string, limit int) ([]*images.Image, error) {
	return s.Images.Latest(ctx, userID, limit)
}

func (s *Service) CursorImages(ctx context.Context, userID string, cursorTime time.Time, cursorID string, pageSize int) ([]*images.Image, error) {
	return s.Images.Cursor(ctx, userID, cursorTime, cursorID, pageSize)
}

// ImageURL signs a viewer URL for an image the user owns.
func (s *Service) ImageURL(ctx context.Context, userID string, id images.ImageID) (string, time.Time, error) {
	img, err := s.Images.Get(ctx, userID, id)
	if err != nil {
		return "", time.Time{}, err
	}
	url, err := s.Store.SignedURL(ctx, img.FilePath, s.SignedURLTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: sign image url: %w", ErrStorage, err)
	}
	return url, s.now().Add(s.SignedURLTTL), nil
}

func (s *Service) GetAnalysis(ctx context.Context, userID string, id domain.ResultID) (*domain.Result, error) {
	return s.Analyses.Get(ctx, userID, id)
}

// Findings renders the viewer feed for a stored analysis.
func (s *Service) Findings(ctx context.Context, userID string, id domain.ResultID) ([]domain.DisplayFinding, error) {
	res, err := s.Analyses.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return domain.DisplayFindings(res.Scores), nil
}

func (s *Service) ListAnalyses(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	return s.Analyses.Paginate(ctx, userID, page, pageSize)
}

func (s *Service) Summary(ctx context.Context, userID string, days int) (domain.RiskSummary, error) {
	return s.Analyses.Summary(ctx, userID, days)
}

// AllAnalyses walks every page of the user's analyses.
func (s *Service) AllAnalyses(ctx context.Context, userID string) ([]*domain.Result, error) {
	const pageSize = 100
	var out []*domain.Result
	for page := 1; ; page++ {
		res, err := s.Analyses.Paginate(ctx, userID, page, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Data...)
		if page >= res.TotalPages || len(res.Data) == 0 {
			return out, nil
		}
	}
}

func (s *Service) ImageErrors(ctx context.Context, userID string, id images.ImageID, limit int) ([]*pipelineerrors.PipelineError, error) {
	if s.Errors == nil {
		return nil, nil
	}
	return s.Errors.ListByImage(ctx, userID, string(id), limit)
}
