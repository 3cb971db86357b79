package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/bryanwahyu/mediscan/internal/domain/pipelineerrors"
)

type PipelineErrorRepository struct {
	db *sql.DB
}

func NewPipelineErrorRepository(db *sql.DB) *PipelineErrorRepository {
	return &PipelineErrorRepository{db: db}
}

func (r *PipelineErrorRepository) Save(ctx context.Context, e *domain.PipelineError) error {
	const q = `
INSERT INTO pipeline_errors
  (user_id, image_id, phase, kind, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?)
`
	_, err := r.db.ExecContext(ctx, q,
		stringOrDash(e.UserID), stringOrDash(e.ImageID), stringOrDash(e.Phase), stringOrDash(e.Kind),
		stringOrDash(e.Message), detailsJSON(e.DetailsJSON), createdAt(e.CreatedAt),
	)
	return err
}

func (r *PipelineErrorRepository) ListByImage(ctx context.Context, userID, imageID string, limit int) ([]*domain.PipelineError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, image_id, phase, kind, message, details_json, created_at
FROM pipeline_errors
WHERE user_id = ? AND image_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
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

// detailsJSON ensures valid json; invalid input is wrapped as a string field
func detailsJSON(details string) string {
	if strings.TrimSpace(details) == "" {
		return "{}"
	}
	var js any
	if json.Unmarshal([]byte(details), &js) != nil {
		b, _ := json.Marshal(map[string]string{"raw": details})
		return string(b)
	}
	return details
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
