package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"tripwise-backend/internal/identity"
	"tripwise-backend/internal/quota"
	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
)

const (
	msgNoMessages      = "Invalid request: messages array is required and must not be empty"
	msgNoFinalFlag     = "Invalid request: isFinal must be a boolean"
	msgBadMessages     = "Invalid message format. All messages must have role and content."
	msgConfigError     = "Server configuration error. Please contact support."
	msgNoCredits       = "No Free Credits Left, Please upgrade your plan"
	msgUpstreamLimited = "Rate limit exceeded. Please try again later or add credits to unlock more requests."
	msgAuthFailed      = "Authentication failed. Please check your API key configuration."
	msgServerError     = "An error occurred while processing your request. Please try again."
)

type ConfigResolver interface {
	Resolve(ctx context.Context) settings.GenerationConfig
}

type Admitter interface {
	Admit(ctx context.Context, key string, cost int, entitled bool) quota.Decision
}

// Reply is the outcome of one turn: the HTTP status and body the
// generation endpoint answers with. Remaining is the caller's credit
// balance, -1 when unknown.
type Reply struct {
	Status    int
	Body      types.TurnResponse
	Remaining int
}

// Engine runs one turn: validate, resolve config, admit, build, generate,
// interpret. Steps run in order; none are retried.
type Engine struct {
	prompts    *Prompts
	resolver   ConfigResolver
	gate       Admitter
	generators map[string]Generator
	finalCost  int
	debug      bool
	logger     *slog.Logger
	now        func() time.Time
}

type EngineOptions struct {
	Prompts    *Prompts
	Resolver   ConfigResolver
	Gate       Admitter
	Generators map[string]Generator
	// FinalTurnCost is the quota charged for a final turn.
	FinalTurnCost int
	// Debug exposes upstream error details to clients.
	Debug  bool
	Logger *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		prompts:    opts.Prompts,
		resolver:   opts.Resolver,
		gate:       opts.Gate,
		generators: opts.Generators,
		finalCost:  opts.FinalTurnCost,
		debug:      opts.Debug,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// Turn validates a raw client request and runs it.
func (e *Engine) Turn(ctx context.Context, caller identity.Caller, req types.TurnRequest) Reply {
	if len(req.Messages) == 0 {
		return failure(http.StatusBadRequest, types.ErrInvalidInput, msgNoMessages, trip.DirectiveNone)
	}
	if req.IsFinal == nil {
		return failure(http.StatusBadRequest, types.ErrInvalidInput, msgNoFinalFlag, trip.DirectiveNone)
	}
	return e.Run(ctx, caller, DecodeMessages(req.Messages), *req.IsFinal)
}

// Run executes a turn over an already decoded transcript.
func (e *Engine) Run(ctx context.Context, caller identity.Caller, transcript []types.ChatMessage, isFinal bool) Reply {
	log := e.logger.With("caller", caller.Key(), "final", isFinal)

	req := e.prompts.BuildRequest(transcript, isFinal)
	if len(req.Messages) == 0 {
		return failure(http.StatusBadRequest, types.ErrInvalidInput, msgBadMessages, trip.DirectiveNone)
	}

	gen := e.resolver.Resolve(ctx)
	if strings.TrimSpace(gen.Credential) == "" {
		log.Error("no generation credential configured")
		return failure(http.StatusInternalServerError, types.ErrServer, msgConfigError, trip.DirectiveNone)
	}
	generator, ok := e.generators[gen.Provider]
	if !ok {
		log.Error("no generator for provider", "provider", gen.Provider)
		return failure(http.StatusInternalServerError, types.ErrServer, msgConfigError, trip.DirectiveNone)
	}

	cost := 0
	if isFinal {
		cost = e.finalCost
	}
	decision := e.gate.Admit(ctx, caller.Key(), cost, caller.Entitled)
	if !decision.Allowed {
		r := failure(http.StatusTooManyRequests, types.ErrRateLimit, msgNoCredits, trip.DirectiveLimit)
		r.Remaining = decision.Remaining
		return r
	}

	started := e.now()
	raw, err := generator.Generate(ctx, Credentials{Model: gen.Model, APIKey: gen.Credential}, req)
	if err != nil {
		log.Warn("generation failed", "model", gen.Model, "error", err)
		r := e.generationFailure(err)
		r.Remaining = decision.Remaining
		return r
	}

	res, err := Interpret(raw, isFinal)
	if err != nil {
		var ie *InterpretError
		if !errors.As(err, &ie) {
			ie = &InterpretError{Code: types.ErrServer, Resp: msgServerError, UI: trip.DirectiveNone, Cause: err}
		}
		log.Warn("unusable generator response", "code", ie.Code, "error", ie.Cause, "raw_len", len(raw))
		r := failure(http.StatusInternalServerError, ie.Code, ie.Resp, ie.UI)
		if e.debug && ie.Cause != nil {
			r.Body.Details = ie.Cause.Error()
		}
		r.Remaining = decision.Remaining
		return r
	}

	log.Info("turn completed",
		"model", gen.Model,
		"ui", res.UI,
		"repaired", res.Repaired,
		"has_plan", res.Plan != nil,
		"duration_ms", e.now().Sub(started).Milliseconds(),
	)
	return Reply{
		Status: http.StatusOK,
		Body: types.TurnResponse{
			Resp:            res.Resp,
			UI:              res.UI,
			PartialTripPlan: res.Partial,
			TripPlan:        res.Plan,
		},
		Remaining: decision.Remaining,
	}
}

var statusPrefixRe = regexp.MustCompile(`^\d+\s*`)

func (e *Engine) generationFailure(err error) Reply {
	var ge *GenerationError
	if !errors.As(err, &ge) {
		ge = &GenerationError{Message: err.Error(), Err: err}
	}
	switch {
	case ge.RateLimited():
		msg := msgUpstreamLimited
		if clean := strings.TrimSpace(statusPrefixRe.ReplaceAllString(ge.Message, "")); strings.Contains(strings.ToLower(clean), "rate limit") {
			msg = clean
		}
		if !ge.ResetAt.IsZero() {
			if mins := int(math.Ceil(ge.ResetAt.Sub(e.now()).Minutes())); mins > 0 {
				msg += fmt.Sprintf(" Rate limit resets in approximately %d minutes.", mins)
			}
		}
		return failure(http.StatusTooManyRequests, types.ErrRateLimit, msg, trip.DirectiveLimit)
	case ge.Unauthorized():
		return failure(http.StatusUnauthorized, types.ErrAuth, msgAuthFailed, trip.DirectiveNone)
	}
	r := failure(http.StatusInternalServerError, types.ErrServer, msgServerError, trip.DirectiveNone)
	if e.debug {
		r.Body.Details = ge.Error()
	}
	return r
}

func failure(status int, code, resp string, ui trip.Directive) Reply {
	return Reply{
		Status:    status,
		Body:      types.TurnResponse{Resp: resp, UI: ui, Error: code},
		Remaining: -1,
	}
}
