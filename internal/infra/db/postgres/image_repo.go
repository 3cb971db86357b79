package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/mediscan/internal/domain/images"
)

type ImageRepository struct{ db *sql.DB }

func NewImageRepository(db *sql.DB) *ImageRepository { return &ImageRepository{db: db} }

const imageColumns = `
SELECT i.id, i.user_id, i.file_path, i.file_name, i.content_type, i.size_bytes, i.uploaded_at,
       EXISTS(SELECT 1 FROM analysis_results a WHERE a.xray_image_id = i.id) AS has_analysis
FROM xray_images i`

func (r *ImageRepository) Save(ctx context.Context, img *domain.Image) error {
	const q = `
INSERT INTO xray_images (id, user_id, file_path, file_name, content_type, size_bytes, uploaded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := r.db.ExecContext(ctx, q,
		img.ID, img.UserID, img.FilePath, stringOrDash(img.FileName), img.ContentType, img.SizeBytes, orNow(img.UploadedAt),
	)
	return err
}

func (r *ImageRepository) Get(ctx context.Context, userID string, id domain.ImageID) (*domain.Image, error) {
	row := r.db.QueryRowContext(ctx, imageColumns+"\nWHERE i.user_id=$1 AND i.id=$2 LIMIT 1;", userID, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return img, err
}

func (r *ImageRepository) Delete(ctx context.Context, userID string, id domain.ImageID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM xray_images WHERE user_id=$1 AND id=$2;`, userID, id)
	return err
}

func (r *ImageRepository) Latest(ctx context.Context, userID string, limit int) ([]*domain.Image, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, imageColumns+"\nWHERE i.user_id=$1 ORDER BY i.uploaded_at DESC LIMIT $2;", userID, limit)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}

func (r *ImageRepository) Cursor(ctx context.Context, userID string, cursorTime time.Time, cursorID string, pageSize int) ([]*domain.Image, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	const where = `
WHERE i.user_id=$1
  AND (i.uploaded_at, i.id) < ($2, $3)
ORDER BY i.uploaded_at DESC, i.id DESC
LIMIT $4;`
	rows, err := r.db.QueryContext(ctx, imageColumns+where, userID, cursorTime, cursorID, pageSize)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}

func scanImage(row rowScanner) (*domain.Image, error) {
	var img domain.Image
	if err := row.Scan(
		&img.ID, &img.UserID, &img.FilePath, &img.FileName, &img.ContentType, &img.SizeBytes, &img.UploadedAt,
		&img.HasAnalysis,
	); err != nil {
		return nil, err
	}
	return &img, nil
}

func scanImages(rows *sql.Rows) ([]*domain.Image, error) {
	defer rows.Close()
	var out []*domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}
