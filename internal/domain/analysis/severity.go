package analysis

import "strings"

// Severity is a display tier derived from confidence. It is never stored.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityFor buckets a 0-100 confidence: <30 low, 30-59 medium, >=60 high.
func SeverityFor(confidencePct float64) Severity {
	switch {
	case confidencePct >= 60:
		return SeverityHigh
	case confidencePct >= 30:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Risk is the overall tier reported for a whole analysis.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ParseRisk accepts the model's tier case-insensitively.
func ParseRisk(s string) (Risk, bool) {
	switch Risk(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, true
	case RiskMedium:
		return RiskMedium, true
	case RiskHigh:
		return RiskHigh, true
	}
	return "", false
}

// RiskFromScores derives a tier from the highest score when the model
// reported an unusable one.
func RiskFromScores(s Scores) Risk {
	var top float64
	for _, v := range s {
		if v > top {
			top = v
		}
	}
	return Risk(SeverityFor(top * 100))
}
