package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
)

// HTTPPersister saves finished plans through the trip endpoint of a remote
// service. The service attributes the trip to the token's owner.
type HTTPPersister struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewHTTPPersister posts to baseURL + "/api/trips" with token as a bearer
// token.
func NewHTTPPersister(baseURL, token string, timeout time.Duration) *HTTPPersister {
	return &HTTPPersister{
		endpoint:   strings.TrimRight(baseURL, "/") + "/api/trips",
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Save ignores ownerID; the server decides the owner from the token.
func (p *HTTPPersister) Save(ctx context.Context, ownerID string, plan trip.Plan) (string, error) {
	b, err := json.Marshal(types.SaveTripRequest{Plan: &plan})
	if err != nil {
		return "", fmt.Errorf("encode trip: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post trip: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read save response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		var e types.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("save trip: status %d: %s: %s", resp.StatusCode, e.Error, e.Message)
		}
		return "", fmt.Errorf("save trip: status %d", resp.StatusCode)
	}
	var body types.SaveTripResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode save response: %w", err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("save trip: response carries no id")
	}
	return body.ID, nil
}
