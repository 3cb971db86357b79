package mysql

import (
	"strings"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// scoreRows flattens scores into (analysis_id, condition_key, score) triples
// for every condition, zero included.
func scoreRows(id string, s analysis.Scores) []any {
	args := make([]any, 0, len(analysis.Conditions)*3)
	for _, c := range analysis.Conditions {
		args = append(args, id, c.Key(), s.Get(c))
	}
	return args
}
