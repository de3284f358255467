package types

import (
	"encoding/json"

	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/user"
)

// ChatMessage is one transcript entry sent to the generation endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the body of POST /api/aimodel. Messages stay raw so that
// malformed entries can be dropped one by one instead of failing the body.
// IsFinal is a pointer so a missing flag is distinguishable from false.
type TurnRequest struct {
	Messages []json.RawMessage `json:"messages"`
	IsFinal  *bool             `json:"isFinal"`
}

// TurnResponse is returned by the generation endpoint for successes and
// failures alike. Failures set Error to one of the taxonomy codes.
type TurnResponse struct {
	Resp            string         `json:"resp"`
	UI              trip.Directive `json:"ui"`
	PartialTripPlan *trip.Plan     `json:"partial_trip_plan,omitempty"`
	TripPlan        *trip.Plan     `json:"trip_plan,omitempty"`
	Error           string         `json:"error,omitempty"`
	Details         string         `json:"details,omitempty"`
}

// Error codes surfaced to clients.
const (
	ErrInvalidInput       = "INVALID_INPUT"
	ErrParse              = "PARSE_ERROR"
	ErrIncompleteResponse = "INCOMPLETE_RESPONSE"
	ErrIncompleteTripPlan = "INCOMPLETE_TRIP_PLAN"
	ErrEmptyResponse      = "EMPTY_RESPONSE"
	ErrRateLimit          = "RATE_LIMIT"
	ErrAuth               = "AUTH_ERROR"
	ErrServer             = "SERVER_ERROR"
)

type ChatRequest struct {
	Message string `json:"message"`
}

// WidgetRequest carries a guided-input selection. Option is the widget
// option title; Days is used by the trip duration stepper.
type WidgetRequest struct {
	Kind   trip.Directive `json:"kind"`
	Option string         `json:"option,omitempty"`
	Days   int            `json:"days,omitempty"`
}

// SessionMessage is a transcript entry as shown to clients.
type SessionMessage struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content string         `json:"content"`
	UI      trip.Directive `json:"ui,omitempty"`
}

// ChatResponse is the state of a server-side conversation session.
type ChatResponse struct {
	SessionID string           `json:"sessionId"`
	State     string           `json:"state"`
	FinalMode bool             `json:"finalMode"`
	Messages  []SessionMessage `json:"messages"`
	UI        trip.Directive   `json:"ui,omitempty"`
	Plan      *trip.Plan       `json:"trip_plan,omitempty"`
	TripID    string           `json:"tripId,omitempty"`
	Error     string           `json:"error,omitempty"`
	SaveError string           `json:"saveError,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AdminConfigRequest updates the generation settings. A blank credential
// or an absent email list keeps the stored value.
type AdminConfigRequest struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model"`
	Credential  string   `json:"credential,omitempty"`
	AdminEmails []string `json:"adminEmails,omitempty"`
}

// AdminConfigResponse never carries the credential itself.
type AdminConfigResponse struct {
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	HasCredential bool     `json:"hasCredential"`
	AdminEmails   []string `json:"adminEmails"`
	UpdatedAt     int64    `json:"updatedAt,omitempty"`
	UpdatedBy     string   `json:"updatedBy,omitempty"`
}

type MeResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Entitled  bool   `json:"entitled"`
	Anonymous bool   `json:"anonymous"`
	Admin     bool   `json:"admin"`
}

// SaveTripRequest is the body of POST /api/trips.
type SaveTripRequest struct {
	Plan *trip.Plan `json:"trip_plan"`
}

type SaveTripResponse struct {
	ID string `json:"id"`
}

// AdminTripPage lists every owner's trips. Total counts all stored trips.
type AdminTripPage struct {
	Items      []trip.Record `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
	Total      int64         `json:"total"`
}

type AdminUserPage struct {
	Items      []user.User `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
	Total      int64       `json:"total"`
}
