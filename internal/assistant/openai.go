package assistant

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator talks to any OpenAI-compatible chat completion API.
// It is used with OpenRouter by default.
type OpenAIGenerator struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIGenerator(baseURL string, timeout time.Duration) *OpenAIGenerator {
	return &OpenAIGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate builds a client per call because the key may change between
// calls when an admin updates it.
func (g *OpenAIGenerator) Generate(ctx context.Context, cred Credentials, req Request) (string, error) {
	cfg := openai.DefaultConfig(cred.APIKey)
	if g.baseURL != "" {
		cfg.BaseURL = g.baseURL
	}
	rec := &resetRecorder{doer: g.httpClient}
	cfg.HTTPClient = rec
	client := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       cred.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", openAIError(err, rec.resetAt())
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIError(err error, resetAt time.Time) error {
	ge := &GenerationError{Message: err.Error(), ResetAt: resetAt, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		ge.Status = apiErr.HTTPStatusCode
		ge.Message = apiErr.Message
	case errors.As(err, &reqErr):
		ge.Status = reqErr.HTTPStatusCode
		if reqErr.Err != nil {
			ge.Message = reqErr.Err.Error()
		}
	}
	return ge
}

// resetRecorder remembers the rate-limit reset header of a 429 response,
// which go-openai does not surface on its error types.
type resetRecorder struct {
	doer openai.HTTPDoer

	mu    sync.Mutex
	reset time.Time
}

func (r *resetRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.doer.Do(req)
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		if t, ok := parseReset(resp.Header.Get("X-RateLimit-Reset")); ok {
			r.mu.Lock()
			r.reset = t
			r.mu.Unlock()
		}
	}
	return resp, err
}

func (r *resetRecorder) resetAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reset
}

// parseReset reads a reset header given in Unix milliseconds or seconds.
func parseReset(v string) (time.Time, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n < 1e12 {
		return time.Unix(n, 0), true
	}
	return time.UnixMilli(n), true
}
