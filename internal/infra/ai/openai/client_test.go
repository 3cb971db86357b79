package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/mediscan/internal/domain/ai"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func reply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
	})
	return string(b)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "secret"})
}

func TestValidateSendsImagePart(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply("YES")))
	})

	var usage int
	c.Usage = func(call string, p, comp int) { usage = p + comp }

	v, err := c.Validate(context.Background(), "https://storage.test/u/1.png?sig=1")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 13, usage)

	assert.Equal(t, defaultValidationModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)

	var parts []map[string]any
	require.NoError(t, json.Unmarshal(got.Messages[1].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0]["type"])
	assert.Equal(t, "image_url", parts[1]["type"])
	assert.Equal(t, "https://storage.test/u/1.png?sig=1", parts[1]["image_url"].(map[string]any)["url"])
}

func TestValidateRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply("NO: This appears to be a knee X-ray")))
	})

	v, err := c.Validate(context.Background(), "https://x")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "This appears to be a knee X-ray", v.Reason)
}

func TestAnalyzeParsesFencedJSON(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply("```json\n{\"findings\":[{\"condition\":\"Nodule\",\"confidence\":82}],\"overallRisk\":\"high\",\"recommendation\":\"CT\",\"summary\":\"s\"}\n```")))
	})

	rep, err := c.Analyze(context.Background(), "https://x")
	require.NoError(t, err)
	assert.Equal(t, defaultAnalysisModel, got.Model)
	require.Len(t, rep.Findings, 1)
	assert.Equal(t, 82.0, rep.Findings[0].Confidence)
}

func TestAnalyzeMalformedAndEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply("Sorry, I can't help with that.")))
	})
	_, err := c.Analyze(context.Background(), "https://x")
	assert.ErrorIs(t, err, ai.ErrMalformedOutput)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	})
	_, err = c.Analyze(context.Background(), "https://x")
	assert.ErrorIs(t, err, ai.ErrMalformedOutput)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ai.ErrRateLimited},
		{http.StatusPaymentRequired, ai.ErrQuotaExceeded},
		{http.StatusInternalServerError, ai.ErrUpstream},
		{http.StatusBadGateway, ai.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"error"}}`))
			})

			_, err := c.Validate(context.Background(), "https://x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var se *ai.StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Code)
		})
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := c.Analyze(context.Background(), "https://x")
	assert.ErrorIs(t, err, ai.ErrUpstream)
}

func TestTransportErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, APIKey: "k"})
	_, err := c.Validate(context.Background(), "https://x")
	assert.ErrorIs(t, err, ai.ErrUpstream)
}
