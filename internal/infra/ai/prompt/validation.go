package prompt

import (
	"strings"

	"github.com/bryanwahyu/mediscan/internal/domain/ai"
)

// ValidationSystemPrompt asks the model for a bare YES or NO verdict.
func ValidationSystemPrompt() string {
	return `You are a medical image validator. Your task is to determine if an image is a chest X-ray. Respond with ONLY "YES" if it is a chest X-ray, or "NO: [reason]" if it is not.`
}

// ValidationUserPrompt accompanies the image part of the validation call.
func ValidationUserPrompt() string {
	return "Is this a chest X-ray image? Answer with YES or NO: [reason]"
}

// ParseValidation reads the verdict. Anything that does not start with YES
// is a rejection; the reason is the reply without its "NO:" marker.
func ParseValidation(reply string) ai.Validation {
	raw := strings.TrimSpace(reply)
	if strings.HasPrefix(raw, "YES") {
		return ai.Validation{Valid: true, Raw: raw}
	}
	reason := strings.TrimSpace(strings.TrimPrefix(raw, "NO:"))
	return ai.Validation{Valid: false, Reason: reason, Raw: raw}
}
