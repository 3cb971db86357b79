package analysis

import (
	"errors"
	"strings"

	"github.com/bryanwahyu/mediscan/internal/application/retry"
	"github.com/bryanwahyu/mediscan/internal/domain/ai"
	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorage            = errors.New("storage failure")
	ErrRollbackFailed     = errors.New("rollback failed")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
)

// DefaultRejectReason is used when the model says NO without a reason.
const DefaultRejectReason = "This image does not appear to be a chest X-ray."

// RejectedError reports that validation decided the image is not a chest
// X-ray. Rollback holds the cleanup failure, if any.
type RejectedError struct {
	Reason   string
	Rollback error
}

func (e *RejectedError) Error() string {
	if e.Rollback != nil {
		return "image rejected: " + e.Reason + " (" + e.Rollback.Error() + ")"
	}
	return "image rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return e.Rollback }

// Kind groups failures by what the caller should be told.
type Kind string

const (
	KindRejected        Kind = "rejected"
	KindInvalidInput    Kind = "invalid_input"
	KindRateLimited     Kind = "rate_limited"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindMalformedOutput Kind = "malformed_output"
	KindStorage         Kind = "storage"
	KindNotFound        Kind = "not_found"
	KindInProgress      Kind = "in_progress"
	KindUnavailable     Kind = "unavailable"
	KindTransient       Kind = "transient"
)

// Failure is the human readable form of a pipeline error.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

var storageKeywords = []string{"bucket", "storage", "object", "upload"}

const cleanupNotice = "The upload could not be fully removed. Please contact support."

// Classify maps any pipeline error to a Failure. Raw error text only leaks
// through for invalid input and rejections, which are already user facing.
func Classify(err error) Failure {
	var rejected *RejectedError
	switch {
	case err == nil:
		return Failure{}
	case errors.As(err, &rejected):
		if rejected.Rollback != nil {
			return Failure{KindStorage, "Invalid Image", sentence(rejected.Reason) + " " + cleanupNotice}
		}
		return Failure{KindRejected, "Invalid Image", rejected.Reason}
	case errors.Is(err, ErrRollbackFailed):
		return Failure{KindStorage, "Cleanup Failed", cleanupNotice}
	case errors.Is(err, ErrInvalidInput):
		return Failure{KindInvalidInput, "Invalid Request", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")}
	case errors.Is(err, ai.ErrRateLimited):
		return Failure{KindRateLimited, "High Demand", "Rate limit exceeded. Please try again in a moment."}
	case errors.Is(err, ai.ErrQuotaExceeded):
		return Failure{KindQuotaExceeded, "Service Unavailable", "AI service temporarily unavailable. Please contact support."}
	case errors.Is(err, ai.ErrMalformedOutput):
		return Failure{KindMalformedOutput, "Analysis Failed", "The analysis service returned an unreadable response. Please try again."}
	case errors.Is(err, ErrAnalysisInProgress):
		return Failure{KindInProgress, "Analysis In Progress", "This image is already being analyzed."}
	case errors.Is(err, images.ErrNotFound), errors.Is(err, domain.ErrNotFound):
		return Failure{KindNotFound, "Not Found", "The requested record does not exist."}
	case retry.IsOpen(err):
		return Failure{KindUnavailable, "Service Unavailable", "The analysis service is temporarily unavailable. Please try again later."}
	case isStorage(err):
		return Failure{KindStorage, "Storage Error", "Failed to store the image. Please try again."}
	}
	return Failure{KindTransient, "Analysis Failed", "Something went wrong while processing the image. Please try again."}
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

func isStorage(err error) bool {
	if errors.Is(err, ErrStorage) {
		return true
	}
	// model gateway bodies may mention objects or uploads
	if errors.Is(err, ai.ErrUpstream) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range storageKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Retryable reports whether another attempt could succeed. Used as
// retry.Policy.Retryable when error classification is enabled.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ai.ErrQuotaExceeded),
		errors.Is(err, ai.ErrMalformedOutput),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, images.ErrNotFound),
		errors.Is(err, domain.ErrNotFound),
		retry.IsOpen(err):
		return false
	}
	return true
}
