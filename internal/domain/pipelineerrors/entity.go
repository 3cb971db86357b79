package pipelineerrors

import "time"

// PipelineError is one persisted failure of an upload-and-analyze run.
type PipelineError struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	ImageID     string    `json:"image_id"`
	Phase       string    `json:"phase"` // uploading | persisting | validating | analyzing | saving | rolling_back
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
