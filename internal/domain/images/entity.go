package images

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ImageID tipe untuk UploadedImage
type ImageID string

// Image is an uploaded chest X-ray. The row is the pending record of an upload
// until an analysis result references it.
type Image struct {
	ID          ImageID   `json:"id"`
	UserID      string    `json:"user_id"`
	FilePath    string    `json:"file_path"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`

	// filled by listing queries only
	HasAnalysis bool `json:"has_analysis"`
}

// StorageKey builds the object key {userId}/{timestamp}.{ext}
func StorageKey(userID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%d.%s", userID, at.UnixMilli(), ext)
}

// Extension picks the file extension from the original name, falling back to
// the content type.
func Extension(fileName, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	switch ext {
	case "jpg", "jpeg", "png":
		return ext
	}
	switch strings.ToLower(contentType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	}
	return "bin"
}
