package assistant

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// GeminiGenerator calls the Gemini API. Assistant turns are sent with the
// "model" role, which is what Gemini expects for prior replies.
type GeminiGenerator struct {
	baseURL    string
	httpClient *http.Client
}

func NewGeminiGenerator(baseURL string, timeout time.Duration) *GeminiGenerator {
	return &GeminiGenerator{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

func (g *GeminiGenerator) Generate(ctx context.Context, cred Credentials, req Request) (string, error) {
	cc := &genai.ClientConfig{
		APIKey:     cred.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", &GenerationError{Message: err.Error(), Err: err}
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := client.Models.GenerateContent(ctx, cred.Model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(req.Temperature),
		MaxOutputTokens:   int32(req.MaxTokens),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", geminiError(err)
	}
	return resp.Text(), nil
}

func geminiError(err error) error {
	ge := &GenerationError{Message: err.Error(), Err: err}
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		ge.Status = apiErr.Code
		ge.Message = apiErr.Message
	case errors.As(err, &apiErrPtr):
		ge.Status = apiErrPtr.Code
		ge.Message = apiErrPtr.Message
	}
	return ge
}
