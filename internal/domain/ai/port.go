package ai

import (
	"context"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

// Validation is the outcome of the "is this a chest X-ray" call.
type Validation struct {
	Valid  bool
	Reason string
	// Raw reply as returned by the model, kept for the error audit.
	Raw string
}

// Client talks to the remote vision model. imageURL must be fetchable by the
// provider, in practice a short-lived signed URL.
type Client interface {
	Validate(ctx context.Context, imageURL string) (Validation, error)
	Analyze(ctx context.Context, imageURL string) (*analysis.Report, error)
}
