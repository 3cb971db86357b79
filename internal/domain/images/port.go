package images

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("image not found")

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, img *Image) error
	Get(ctx context.Context, userID string, id ImageID) (*Image, error)
	Delete(ctx context.Context, userID string, id ImageID) error
	Latest(ctx context.Context, userID string, limit int) ([]*Image, error)
	Cursor(ctx context.Context, userID string, cursorTime time.Time, cursorID string, pageSize int) ([]*Image, error)
}

// ObjectStore port (interface untuk penyimpanan blob gambar)
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
