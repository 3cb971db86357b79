package middleware

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

// UploadError carries the user-facing title and description for a rejected
// upload.
type UploadError struct {
	Title   string
	Message string
}

func (e *UploadError) Error() string { return e.Message }

// DefaultAllowedTypes are the image types the viewer and the model accept.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/jpg"}

// DefaultMaxUploadBytes is the upload size cap (10MB).
const DefaultMaxUploadBytes int64 = 10 << 20

// ValidateUpload checks the declared content type and size of an upload.
func ValidateUpload(contentType string, size int64, allowed []string, maxBytes int64) error {
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ok := false
	for _, a := range allowed {
		if ct == strings.ToLower(a) {
			ok = true
			break
		}
	}
	if !ok {
		return &UploadError{Title: "Invalid File Type", Message: "Please upload a JPEG or PNG image."}
	}
	if size > maxBytes {
		return TooLarge(maxBytes)
	}
	return nil
}

// TooLarge is the upload error for a file over maxBytes.
func TooLarge(maxBytes int64) *UploadError {
	return &UploadError{
		Title:   "File Too Large",
		Message: fmt.Sprintf("File size must be less than %dMB.", maxBytes>>20),
	}
}

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateUserID validates user ID format
func ValidateUserID(user string) error {
	if user == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if !userIDPattern.MatchString(user) {
		return fmt.Errorf("invalid user ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateID validates a UUID path parameter
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s ID cannot be empty", kind)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid %s ID format", kind)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidatePage validates the 1-based page number
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 30 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
