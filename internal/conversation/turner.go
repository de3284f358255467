package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tripwise-backend/internal/assistant"
	"tripwise-backend/internal/identity"
	"tripwise-backend/internal/types"
)

// EngineTurner runs turns in-process.
type EngineTurner struct {
	Engine *assistant.Engine
	// Caller returns who the turn runs for, usually from the request
	// context so that entitlement changes apply to the next turn.
	Caller func(ctx context.Context) identity.Caller
}

func (t EngineTurner) Turn(ctx context.Context, transcript []types.ChatMessage, isFinal bool) (assistant.Reply, error) {
	return t.Engine.Run(ctx, t.Caller(ctx), transcript, isFinal), nil
}

// FixedCaller returns a Caller func that always answers c.
func FixedCaller(c identity.Caller) func(context.Context) identity.Caller {
	return func(context.Context) identity.Caller { return c }
}

// HTTPTurner runs turns against the generation endpoint of a remote
// service.
type HTTPTurner struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewHTTPTurner posts to baseURL + "/api/aimodel". token, when set, is
// sent as a bearer token.
func NewHTTPTurner(baseURL, token string, timeout time.Duration) *HTTPTurner {
	return &HTTPTurner{
		endpoint:   strings.TrimRight(baseURL, "/") + "/api/aimodel",
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type turnPayload struct {
	Messages []types.ChatMessage `json:"messages"`
	IsFinal  bool                `json:"isFinal"`
}

func (t *HTTPTurner) Turn(ctx context.Context, transcript []types.ChatMessage, isFinal bool) (assistant.Reply, error) {
	b, err := json.Marshal(turnPayload{Messages: transcript, IsFinal: isFinal})
	if err != nil {
		return assistant.Reply{}, fmt.Errorf("encode turn: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(b))
	if err != nil {
		return assistant.Reply{}, fmt.Errorf("build turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return assistant.Reply{}, fmt.Errorf("post turn: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return assistant.Reply{}, fmt.Errorf("read turn response: %w", err)
	}
	var body types.TurnResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return assistant.Reply{}, fmt.Errorf("decode turn response (status %d): %w", resp.StatusCode, err)
	}
	if body.UI != "" && !body.UI.Valid() {
		return assistant.Reply{}, fmt.Errorf("turn response (status %d) carries unknown ui %q", resp.StatusCode, body.UI)
	}

	remaining := -1
	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			remaining = n
		}
	}
	return assistant.Reply{Status: resp.StatusCode, Body: body, Remaining: remaining}, nil
}
