package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/mediscan/internal/domain/ai"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/infra/ai/prompt"
)

const (
	maxTokens = 2048

	defaultValidationModel = "google/gemini-2.5-flash"
	defaultAnalysisModel   = "google/gemini-2.5-pro"
)

type Config struct {
	BaseURL         string
	APIKey          string
	ValidationModel string
	AnalysisModel   string
	Timeout         time.Duration
}

// Client implements ai.Client against an OpenAI compatible chat endpoint.
type Client struct {
	*openai.Client
	ValidationModel string
	AnalysisModel   string
	Timeout         time.Duration
	// Usage, when set, receives token counts per call.
	Usage func(call string, promptTokens, completionTokens int)
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	c := &Client{
		Client:          openai.NewClientWithConfig(oc),
		ValidationModel: cfg.ValidationModel,
		AnalysisModel:   cfg.AnalysisModel,
		Timeout:         cfg.Timeout,
	}
	if c.ValidationModel == "" {
		c.ValidationModel = defaultValidationModel
	}
	if c.AnalysisModel == "" {
		c.AnalysisModel = defaultAnalysisModel
	}
	return c
}

func (c *Client) Validate(ctx context.Context, imageURL string) (ai.Validation, error) {
	content, err := c.complete(ctx, "validate", c.ValidationModel, prompt.ValidationSystemPrompt(), prompt.ValidationUserPrompt(), imageURL)
	if err != nil {
		return ai.Validation{}, err
	}
	return prompt.ParseValidation(content), nil
}

func (c *Client) Analyze(ctx context.Context, imageURL string) (*analysis.Report, error) {
	content, err := c.complete(ctx, "analyze", c.AnalysisModel, prompt.AnalysisSystemPrompt(), prompt.AnalysisUserPrompt(), imageURL)
	if err != nil {
		return nil, err
	}
	return prompt.ParseReport(content)
}

// complete sends one system message and one user message made of a text part
// and an image part, and returns the first choice.
func (c *Client) complete(ctx context.Context, call, model, system, text, imageURL string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: text},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
			}},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(call, err)
	}
	if c.Usage != nil {
		c.Usage(call, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", ai.ErrMalformedOutput, call)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify turns go-openai errors into the ai package's typed errors.
func classify(call string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%s: %w", call, ai.FromStatus(apiErr.HTTPStatusCode, apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return fmt.Errorf("%s: %w", call, ai.FromStatus(reqErr.HTTPStatusCode, body))
	}
	return fmt.Errorf("%s: %w: %w", call, ai.ErrUpstream, err)
}
