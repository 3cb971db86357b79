package prompt

import (
	"strings"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

const analysisSchema = `{
  "findings": [
    {
      "condition": "name of condition",
      "confidence": 0-100,
      "severity": "low" | "medium" | "high",
      "location": "specific anatomical location",
      "size": "size description if applicable",
      "details": "detailed description of what is observed"
    }
  ],
  "overallRisk": "low" | "medium" | "high",
  "recommendation": "detailed clinical recommendation",
  "summary": "comprehensive summary of findings"
}`

// AnalysisSystemPrompt provides the radiologist role, the JSON schema and
// the conditions to score.
func AnalysisSystemPrompt() string {
	names := make([]string, len(analysis.Conditions))
	for i, c := range analysis.Conditions {
		names[i] = string(c)
	}

	var b strings.Builder
	b.WriteString("You are an expert radiologist AI assistant. Analyze chest X-rays and provide detailed findings in JSON format.\n\n")
	b.WriteString("Return a JSON object with this exact structure:\n")
	b.WriteString(analysisSchema)
	b.WriteString("\n\nAnalyze for: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\n\n")
	b.WriteString("Be specific about locations (upper/middle/lower lobe, left/right, etc.), sizes (in cm if measurable), and characteristics.")
	return b.String()
}

// AnalysisUserPrompt accompanies the image part of the analysis call.
func AnalysisUserPrompt() string {
	return "Analyze this chest X-ray and provide detailed findings in JSON format."
}
