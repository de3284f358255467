package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"tripwise-backend/internal/conversation"
	"tripwise-backend/internal/types"
	"tripwise-backend/internal/widget"
)

// session returns the caller's conversation, starting a new one when the
// request carries no live session id or the session belongs to someone
// else.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *conversation.Session {
	caller := callerFrom(r.Context())
	if sess, ok := s.sessions.Get(getSessionID(r)); ok && sess.OwnerID() == caller.ID {
		w.Header().Set("X-Session-Id", sess.ID())
		return sess
	}

	var persister conversation.Persister
	if caller.Authenticated() {
		persister = s.trips
	}
	sess := conversation.NewSession(
		uuid.NewString(),
		caller.ID,
		conversation.EngineTurner{Engine: s.engine, Caller: callerFrom},
		persister,
		s.logger,
	)
	s.sessions.Put(sess)
	s.logger.Info("session created", "session", sess.ID(), "caller", caller.Key(), "path", r.URL.Path)
	SetSessionCookie(w, sess.ID(), s.cfg.Server.SessionTTL, s.cfg.Server.SecureCookies)
	w.Header().Set("X-Session-Id", sess.ID())
	return sess
}

func (s *Server) handleChatSnapshot(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	writeJSON(w, http.StatusOK, chatResponse(sess.Snapshot(), nil))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "invalid JSON body")
		return
	}
	sess := s.session(w, r)
	s.send(w, r, sess, sess.Send, req.Message)
}

func (s *Server) handleChatWidget(w http.ResponseWriter, r *http.Request) {
	var req types.WidgetRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "invalid JSON body")
		return
	}
	wd := widget.ForDirective(req.Kind)
	if wd == nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "no guided input for "+string(req.Kind))
		return
	}

	var token string
	if d, ok := wd.(*widget.TripDuration); ok && req.Days > 0 {
		d.Set(req.Days)
		token = d.Token()
	} else {
		var err error
		if token, err = wd.Choose(req.Option); err != nil {
			writeError(w, http.StatusBadRequest, types.ErrInvalidInput, err.Error())
			return
		}
	}
	sess := s.session(w, r)
	s.send(w, r, sess, sess.Choose, token)
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	sess.Reset()
	writeJSON(w, http.StatusOK, chatResponse(sess.Snapshot(), nil))
}

// dispatch is sess.Send for typed messages and sess.Choose for widget
// selections.
func (s *Server) send(w http.ResponseWriter, r *http.Request, sess *conversation.Session, dispatch func(context.Context, string) (*conversation.Outcome, error), text string) {
	// a dispatched turn runs to completion even if the client goes away
	out, err := dispatch(context.WithoutCancel(r.Context()), text)
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "message is required")
		return
	case errors.Is(err, conversation.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "TURN_IN_FLIGHT", "Please wait for the current reply")
		return
	case errors.Is(err, conversation.ErrSessionErrored):
		writeError(w, http.StatusConflict, "SESSION_ERRORED", "Start a new conversation to continue")
		return
	case err != nil:
		s.logger.Error("chat send failed", "session", sess.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "An error occurred while processing your request. Please try again.")
		return
	}

	setRemaining(w, out.Remaining)
	status := http.StatusOK
	if out.Error != "" {
		status = out.Status
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, chatResponse(sess.Snapshot(), out))
}

func chatResponse(snap conversation.Snapshot, out *conversation.Outcome) types.ChatResponse {
	resp := types.ChatResponse{
		SessionID: snap.ID,
		State:     string(snap.State),
		FinalMode: snap.FinalMode,
		Messages:  make([]types.SessionMessage, 0, len(snap.Messages)),
		UI:        snap.UI,
		Plan:      snap.Plan,
		TripID:    snap.TripID,
		Error:     snap.Error,
	}
	for _, m := range snap.Messages {
		resp.Messages = append(resp.Messages, types.SessionMessage{ID: m.ID, Role: m.Role, Content: m.Content, UI: m.UI})
	}
	if out != nil {
		resp.Error = out.Error
		if out.SaveError != nil {
			resp.SaveError = "Your trip could not be saved. It is still shown here."
		}
	}
	return resp
}
