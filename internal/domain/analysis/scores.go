package analysis

import (
	"sort"
)

// Finding is one condition assessment returned by the model. It only lives
// between the AI call and score mapping.
type Finding struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
	Location   string  `json:"location"`
	Size       string  `json:"size,omitempty"`
	Details    string  `json:"details"`
}

// Report is the structured analysis response of the model.
type Report struct {
	Findings       []Finding `json:"findings"`
	OverallRisk    string    `json:"overallRisk"`
	Recommendation string    `json:"recommendation"`
	Summary        string    `json:"summary"`
}

// Scores holds a 0..1 score per condition. Missing conditions read as zero.
type Scores map[Condition]float64

// Get returns the score for c, zero when absent.
func (s Scores) Get(c Condition) float64 { return s[c] }

// Fields renders all eighteen "<condition>_score" fields.
func (s Scores) Fields() map[string]float64 {
	out := make(map[string]float64, len(Conditions))
	for _, c := range Conditions {
		out[c.Field()] = s[c]
	}
	return out
}

// Rescale converts a 0-100 confidence to 0..1. Out of range input is clamped
// first so the result never leaves [0, 1].
func Rescale(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	if confidence >= 100 {
		return 1
	}
	return confidence / 100
}

// MapScores matches findings against the fixed condition set. Unknown
// conditions are dropped without error; when the model repeats a condition
// the last finding wins.
func MapScores(findings []Finding) Scores {
	scores := make(Scores, len(findings))
	for _, f := range findings {
		c, ok := LookupCondition(f.Condition)
		if !ok {
			continue
		}
		scores[c] = Rescale(f.Confidence)
	}
	return scores
}

// DisplayFinding is what the annotated viewer renders for one condition.
type DisplayFinding struct {
	Condition  Condition `json:"condition"`
	Field      string    `json:"field"`
	Confidence float64   `json:"confidence"`
	Severity   Severity  `json:"severity"`
	Location   string    `json:"location"`
	Marker     Marker    `json:"marker"`
	Color      string    `json:"color"`
}

// displayThreshold hides near-zero scores from the viewer (percent).
const displayThreshold = 5

// DisplayFindings converts stored scores back to percent findings, keeps the
// ones above the display threshold and sorts them by confidence.
func DisplayFindings(s Scores) []DisplayFinding {
	out := make([]DisplayFinding, 0, len(s))
	for _, c := range Conditions {
		pct := s[c] * 100
		if pct <= displayThreshold {
			continue
		}
		out = append(out, DisplayFinding{
			Condition:  c,
			Field:      c.Field(),
			Confidence: pct,
			Severity:   SeverityFor(pct),
			Location:   c.DefaultLocation(),
			Marker:     c.MarkerPosition(),
			Color:      c.Color(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
