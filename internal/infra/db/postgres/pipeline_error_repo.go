package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	domain "github.com/bryanwahyu/mediscan/internal/domain/pipelineerrors"
)

type PipelineErrorRepository struct{ db *sql.DB }

func NewPipelineErrorRepository(db *sql.DB) *PipelineErrorRepository {
	return &PipelineErrorRepository{db: db}
}

func (r *PipelineErrorRepository) Save(ctx context.Context, e *domain.PipelineError) error {
	const q = `
INSERT INTO pipeline_errors
  (user_id, image_id, phase, kind, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)`
	details := e.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else if !json.Valid([]byte(details)) {
		b, _ := json.Marshal(map[string]string{"raw": details})
		details = string(b)
	}
	_, err := r.db.ExecContext(ctx, q,
		stringOrDash(e.UserID), stringOrDash(e.ImageID), stringOrDash(e.Phase), stringOrDash(e.Kind),
		stringOrDash(e.Message), details, orNow(e.CreatedAt),
	)
	return err
}

func (r *PipelineErrorRepository) ListByImage(ctx context.Context, userID, imageID string, limit int) ([]*domain.PipelineError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, image_id, phase, kind, message, details_json::text, created_at
FROM pipeline_errors
WHERE user_id = $1 AND image_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3;`
	rows, err := r.db.QueryContext(ctx, q, userID, imageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.PipelineError
	for rows.Next() {
		var e domain.PipelineError
		if err := rows.Scan(&e.ID, &e.UserID, &e.ImageID, &e.Phase, &e.Kind, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
