package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/mediscan/internal/domain/images"
)

type ImageRepository struct {
	db *sql.DB
}

func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `
SELECT i.id, i.user_id, i.file_path, i.file_name, i.content_type, i.size_bytes, i.uploaded_at,
       EXISTS(SELECT 1 FROM analysis_results a WHERE a.xray_image_id = i.id) AS has_analysis
FROM xray_images i`

// Save inserts the pending image row.
func (r *ImageRepository) Save(ctx context.Context, img *domain.Image) error {
	const q = `
INSERT INTO xray_images (id, user_id, file_path, file_name, content_type, size_bytes, uploaded_at)
VALUES (?,?,?,?,?,?,?);
`
	uploaded := img.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		img.ID, img.UserID, img.FilePath, stringOrDash(img.FileName), img.ContentType, img.SizeBytes, uploaded,
	)
	return err
}

// Get by ID + user
func (r *ImageRepository) Get(ctx context.Context, userID string, id domain.ImageID) (*domain.Image, error) {
	row := r.db.QueryRowContext(ctx, imageColumns+"\nWHERE i.user_id=? AND i.id=? LIMIT 1;", userID, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return img, err
}

// Delete removes a pending image row.
func (r *ImageRepository) Delete(ctx context.Context, userID string, id domain.ImageID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM xray_images WHERE user_id=? AND id=?;`, userID, id)
	return err
}

// Latest images per user
func (r *ImageRepository) Latest(ctx context.Context, userID string, limit int) ([]*domain.Image, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, imageColumns+"\nWHERE i.user_id=? ORDER BY i.uploaded_at DESC LIMIT ?;", userID, limit)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}

// Cursor-based pagination (after cursorTime, cursorID)
func (r *ImageRepository) Cursor(ctx context.Context, userID string, cursorTime time.Time, cursorID string, pageSize int) ([]*domain.Image, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	const where = `
WHERE i.user_id=?
  AND (i.uploaded_at < ? OR (i.uploaded_at = ? AND i.id < ?))
ORDER BY i.uploaded_at DESC, i.id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, imageColumns+where, userID, cursorTime, cursorTime, cursorID, pageSize)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
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
