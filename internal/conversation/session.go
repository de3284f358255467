// Package conversation runs the per-client conversation: it owns the
// transcript, decides when the final turn is due and hands a finished plan
// to the trip store.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripwise-backend/internal/assistant"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
)

type State string

const (
	Idle                 State = "idle"
	AwaitingTurnResponse State = "awaiting_turn_response"
	FinalPending         State = "final_pending"
	Errored              State = "errored"
)

// FinalPrompt is sent on the user's behalf once the assistant signals that
// it has everything it needs.
const FinalPrompt = "Ok, Great"

const (
	msgTransportError = "An error occurred while processing your request. Please try again."
	msgNoPlan         = "Incomplete trip plan received. Please try again."
)

var (
	ErrEmptyMessage   = errors.New("conversation: message is empty")
	ErrTurnInFlight   = errors.New("conversation: a turn is already in progress")
	ErrSessionErrored = errors.New("conversation: session needs a reset")
)

type Message struct {
	ID        string
	Role      string
	Content   string
	UI        trip.Directive
	CreatedAt time.Time
}

// Turner runs one turn over a transcript. A returned error means the turn
// never produced a reply (transport failure); upstream and content failures
// come back as a Reply with an error code.
type Turner interface {
	Turn(ctx context.Context, transcript []types.ChatMessage, isFinal bool) (assistant.Reply, error)
}

// Persister stores a finished plan and returns its id.
type Persister interface {
	Save(ctx context.Context, ownerID string, plan trip.Plan) (string, error)
}

// Outcome describes what the last Send did.
type Outcome struct {
	State  State
	Status int
	UI     trip.Directive
	// Error is the taxonomy code of a failed turn.
	Error     string
	Plan      *trip.Plan
	TripID    string
	SaveError error
	// Remaining is the caller's credit balance, -1 when unknown.
	Remaining int
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	ID        string
	State     State
	FinalMode bool
	Messages  []Message
	UI        trip.Directive
	Plan      *trip.Plan
	TripID    string
	Error     string
}

// Session is one conversation. The mutex guards state transitions only
// and is never held while a turn runs; concurrent sends are refused by the
// state check instead of queued.
type Session struct {
	id        string
	ownerID   string
	turner    Turner
	persister Persister
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	finalMode bool
	messages  []Message
	plan      *trip.Plan
	tripID    string
	lastError string
	// epoch changes on Reset so that a turn started before it is discarded.
	epoch int
}

// NewSession builds a session. persister may be nil, in which case
// finished plans are only held in memory; the same happens when ownerID is
// empty.
func NewSession(id, ownerID string, turner Turner, persister Persister, logger *slog.Logger) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:        id,
		ownerID:   ownerID,
		turner:    turner,
		persister: persister,
		logger:    logger.With("session", id),
		now:       time.Now,
		state:     Idle,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) OwnerID() string { return s.ownerID }

// Send appends a user message and runs the turn it triggers. When the
// assistant answers with the final directive, the final turn is issued
// before Send returns.
func (s *Session) Send(ctx context.Context, text string) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	switch s.state {
	case AwaitingTurnResponse, FinalPending:
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	case Errored:
		s.mu.Unlock()
		return nil, ErrSessionErrored
	}
	isFinal := s.finalMode
	s.appendLocked("user", text, "")
	if isFinal {
		s.state = FinalPending
	} else {
		s.state = AwaitingTurnResponse
	}
	transcript, epoch := s.transcriptLocked(), s.epoch
	s.mu.Unlock()

	return s.run(ctx, transcript, isFinal, epoch), nil
}

// Choose sends a token emitted by a guided-input widget.
func (s *Session) Choose(ctx context.Context, token string) (*Outcome, error) {
	return s.Send(ctx, token)
}

func (s *Session) run(ctx context.Context, transcript []types.ChatMessage, isFinal bool, epoch int) *Outcome {
	reply, err := s.turner.Turn(ctx, transcript, isFinal)
	if err != nil {
		s.logger.Warn("turn transport failed", "final", isFinal, "error", err)
		reply = assistant.Reply{
			Status:    http.StatusInternalServerError,
			Body:      types.TurnResponse{Resp: msgTransportError, UI: trip.DirectiveNone, Error: types.ErrServer},
			Remaining: -1,
		}
	}
	if reply.Body.Error == "" && reply.Status >= http.StatusBadRequest {
		reply.Body.Error = types.ErrServer
	}
	if reply.Body.Error == "" && isFinal && reply.Body.TripPlan == nil {
		reply.Status = http.StatusInternalServerError
		reply.Body = types.TurnResponse{Resp: msgNoPlan, UI: trip.DirectiveNone, Error: types.ErrIncompleteResponse}
	}

	switch {
	case reply.Body.Error != "":
		return s.fail(reply, epoch)
	case isFinal:
		return s.completeFinal(ctx, reply, epoch)
	default:
		return s.completeTurn(ctx, reply, epoch)
	}
}

func (s *Session) completeTurn(ctx context.Context, reply assistant.Reply, epoch int) *Outcome {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return s.discarded(reply)
	}
	body := reply.Body
	s.appendLocked("assistant", body.Resp, body.UI)
	if body.PartialTripPlan != nil {
		if s.plan == nil {
			s.plan = &trip.Plan{}
		}
		s.plan.Merge(*body.PartialTripPlan)
	}
	s.lastError = ""

	if body.UI != trip.DirectiveFinal || s.finalMode {
		s.state = Idle
		out := s.outcomeLocked(reply)
		s.mu.Unlock()
		return out
	}

	s.finalMode = true
	s.appendLocked("user", FinalPrompt, "")
	s.state = FinalPending
	transcript := s.transcriptLocked()
	s.mu.Unlock()

	s.logger.Info("entering final turn", "messages", len(transcript))
	return s.run(ctx, transcript, true, epoch)
}

func (s *Session) completeFinal(ctx context.Context, reply assistant.Reply, epoch int) *Outcome {
	plan := *reply.Body.TripPlan

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return s.discarded(reply)
	}
	s.plan = &plan
	s.lastError = ""
	s.mu.Unlock()

	var (
		id      string
		saveErr error
	)
	if s.persister != nil && s.ownerID != "" {
		id, saveErr = s.persister.Save(ctx, s.ownerID, plan)
		if saveErr != nil {
			s.logger.Error("saving trip plan failed", "owner", s.ownerID, "error", saveErr)
		} else {
			s.logger.Info("trip plan saved", "owner", s.ownerID, "trip_id", id)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return s.discarded(reply)
	}
	if saveErr == nil && id != "" {
		s.tripID = id
	}
	s.state = Idle
	out := s.outcomeLocked(reply)
	out.SaveError = saveErr
	return out
}

func (s *Session) fail(reply assistant.Reply, epoch int) *Outcome {
	body := reply.Body
	ui := trip.DirectiveNone
	if body.Error == types.ErrRateLimit {
		ui = trip.DirectiveLimit
	}
	text := body.Resp
	if strings.TrimSpace(text) == "" {
		text = msgTransportError
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return s.discarded(reply)
	}
	s.appendLocked("assistant", text, ui)
	s.lastError = body.Error
	if body.Error == types.ErrAuth {
		s.state = Errored
	} else {
		s.state = Idle
	}
	s.logger.Warn("turn failed", "code", body.Error, "status", reply.Status, "state", s.state)
	out := s.outcomeLocked(reply)
	out.UI = ui
	return out
}

// discarded reports a turn whose session was reset while it ran.
func (s *Session) discarded(reply assistant.Reply) *Outcome {
	s.logger.Info("dropping reply for a reset session")
	return &Outcome{State: Idle, Status: reply.Status, UI: reply.Body.UI, Error: reply.Body.Error, Remaining: reply.Remaining}
}

func (s *Session) outcomeLocked(reply assistant.Reply) *Outcome {
	out := &Outcome{
		State:     s.state,
		Status:    reply.Status,
		UI:        reply.Body.UI,
		Error:     reply.Body.Error,
		TripID:    s.tripID,
		Remaining: reply.Remaining,
	}
	if reply.Body.TripPlan != nil && s.plan != nil {
		p := *s.plan
		out.Plan = &p
	}
	return out
}

func (s *Session) appendLocked(role, content string, ui trip.Directive) {
	s.messages = append(s.messages, Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		UI:        ui,
		CreatedAt: s.now(),
	})
}

func (s *Session) transcriptLocked() []types.ChatMessage {
	out := make([]types.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		out[i] = types.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		FinalMode: s.finalMode,
		Messages:  append([]Message(nil), s.messages...),
		TripID:    s.tripID,
		Error:     s.lastError,
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == "assistant" {
			snap.UI = s.messages[i].UI
			break
		}
	}
	if s.plan != nil {
		p := *s.plan
		snap.Plan = &p
	}
	return snap
}

// Reset clears the conversation. A turn still running when Reset is called
// completes without touching the new state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = Idle
	s.finalMode = false
	s.messages = nil
	s.plan = nil
	s.tripID = ""
	s.lastError = ""
	s.logger.Info("session reset")
}
