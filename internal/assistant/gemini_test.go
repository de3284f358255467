package assistant_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tripwise-backend/internal/assistant"
)

func TestGeminiGenerate(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"resp\":\"hi\",\"ui\":\"budget\"}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	g := assistant.NewGeminiGenerator(srv.URL+"/", 5*time.Second)
	out, err := g.Generate(context.Background(), assistant.Credentials{Model: "gemini-test", APIKey: "g-key"}, testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"resp":"hi","ui":"budget"}` {
		t.Errorf("unexpected content %q", out)
	}
	if !strings.Contains(path, "gemini-test:generateContent") {
		t.Errorf("unexpected path %s", path)
	}
	contents, _ := body["contents"].([]any)
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %v", body["contents"])
	}
	if role := contents[1].(map[string]any)["role"]; role != "model" {
		t.Errorf("assistant turns should use the model role, got %v", role)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Error("expected system instruction")
	}
}

func TestGeminiGenerateUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`))
	}))
	defer srv.Close()

	_, err := assistant.NewGeminiGenerator(srv.URL+"/", time.Second).Generate(context.Background(), assistant.Credentials{Model: "m", APIKey: "bad"}, testRequest())
	var ge *assistant.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if !ge.Unauthorized() {
		t.Errorf("expected 401 mapping, got status %d", ge.Status)
	}
}
