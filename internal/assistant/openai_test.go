package assistant_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"tripwise-backend/internal/assistant"
	"tripwise-backend/internal/types"
)

func testRequest() assistant.Request {
	return assistant.Request{
		System:      "be a planner",
		Messages:    []types.ChatMessage{{Role: "user", Content: "Plan a trip"}, {Role: "assistant", Content: "Where from?"}},
		Temperature: 0.8,
		MaxTokens:   500,
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		MaxTokens      int    `json:"max_tokens"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gen-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"resp\":\"hi\",\"ui\":\"none\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g := assistant.NewOpenAIGenerator(srv.URL+"/api/v1/", 5*time.Second)
	out, err := g.Generate(context.Background(), assistant.Credentials{Model: "openrouter/test", APIKey: "sk-or"}, testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"resp":"hi","ui":"none"}` {
		t.Errorf("unexpected content %q", out)
	}
	if auth != "Bearer sk-or" {
		t.Errorf("unexpected auth header %q", auth)
	}
	if got.Model != "openrouter/test" || got.MaxTokens != 500 || got.ResponseFormat.Type != "json_object" {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[0].Role != "system" || got.Messages[2].Role != "assistant" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gen-1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	out, err := assistant.NewOpenAIGenerator(srv.URL, time.Second).Generate(context.Background(), assistant.Credentials{Model: "m", APIKey: "k"}, testRequest())
	if err != nil || out != "" {
		t.Fatalf("expected empty content and no error, got %q %v", out, err)
	}
}

func TestOpenAIGenerateStatusErrors(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute).UnixMilli()
	tests := []struct {
		name       string
		status     int
		wantStatus int
		wantReset  bool
	}{
		{"rate limited", http.StatusTooManyRequests, 429, true},
		{"unauthorized", http.StatusUnauthorized, 401, false},
		{"bad gateway", http.StatusBadGateway, 502, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream says no","code":` + strconv.Itoa(tt.status) + `}}`))
			}))
			defer srv.Close()

			_, err := assistant.NewOpenAIGenerator(srv.URL, time.Second).Generate(context.Background(), assistant.Credentials{Model: "m", APIKey: "k"}, testRequest())
			var ge *assistant.GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if ge.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", ge.Status, tt.wantStatus)
			}
			if ge.Message != "upstream says no" {
				t.Errorf("message = %q", ge.Message)
			}
			if got := !ge.ResetAt.IsZero(); got != tt.wantReset {
				t.Errorf("reset recorded = %v, want %v", got, tt.wantReset)
			}
		})
	}
}
