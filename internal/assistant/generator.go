package assistant

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Credentials selects the model and key for a single generation call.
type Credentials struct {
	Model  string
	APIKey string
}

// Generator sends one turn to an upstream model and returns its raw text.
// An empty string with a nil error means the upstream answered with no
// content.
type Generator interface {
	Generate(ctx context.Context, cred Credentials, req Request) (string, error)
}

// GenerationError is an upstream failure with the HTTP status it carried,
// or zero when the request never got a response.
type GenerationError struct {
	Status  int
	Message string
	// ResetAt is when the upstream rate limit lifts, if it said so.
	ResetAt time.Time
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("generation failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("generation failed: %s", e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

func (e *GenerationError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }
