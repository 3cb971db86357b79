package analysis

import (
	"encoding/json"
	"time"
)

// ResultID identifier type
type ResultID string

// Status of a stored analysis
type Status string

const (
	StatusCompleted Status = "completed"
)

// Result is the persisted outcome of one analysis. It is written once and
// never updated.
type Result struct {
	ID             ResultID
	ImageID        string
	UserID         string
	Scores         Scores
	OverallRisk    Risk
	Recommendation string
	Summary        string
	Status         Status
	ProcessingMS   int64
	AnalyzedAt     time.Time
}

// MarshalJSON flattens Scores into the eighteen *_score fields so readers
// keep the one-column-per-condition contract.
func (r Result) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":             r.ID,
		"xray_image_id":  r.ImageID,
		"user_id":        r.UserID,
		"overall_risk":   r.OverallRisk,
		"recommendation": r.Recommendation,
		"summary":        r.Summary,
		"status":         r.Status,
		"processing_ms":  r.ProcessingMS,
		"analyzed_at":    r.AnalyzedAt,
	}
	for field, v := range r.Scores.Fields() {
		out[field] = v
	}
	return json.Marshal(out)
}

// RiskSummary counts analyses per overall risk tier.
type RiskSummary struct {
	Total  int `json:"total_analyses"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// PaginatedResult represents a paginated response with data and metadata
type PaginatedResult struct {
	Data       []*Result `json:"data"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	Total      int64     `json:"totalItems"`
	TotalPages int       `json:"totalPages"`
}
