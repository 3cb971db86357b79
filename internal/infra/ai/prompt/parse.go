package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bryanwahyu/mediscan/internal/domain/ai"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

var (
	jsonFence  = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	plainFence = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

// StripFences returns the body of the first markdown code block, or the
// trimmed input when there is none.
func StripFences(content string) string {
	if m := jsonFence.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := plainFence.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return strings.TrimSpace(content)
}

// ParseReport decodes the analysis reply. Any decode failure is returned as
// ai.ErrMalformedOutput.
func ParseReport(content string) (*analysis.Report, error) {
	body := StripFences(content)
	if body == "" {
		return nil, fmt.Errorf("%w: empty analysis reply", ai.ErrMalformedOutput)
	}
	var r analysis.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMalformedOutput, err)
	}
	return &r, nil
}
