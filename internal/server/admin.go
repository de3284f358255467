package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/store"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
	"tripwise-backend/internal/user"
)

func (s *Server) handleGetAdminConfig(w http.ResponseWriter, r *http.Request) {
	v, err := s.settings.Get(r.Context())
	if err != nil {
		s.logger.Error("load admin config failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not load settings")
		return
	}
	writeJSON(w, http.StatusOK, adminConfigResponse(v))
}

func (s *Server) handleUpdateAdminConfig(w http.ResponseWriter, r *http.Request) {
	var req types.AdminConfigRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "invalid JSON body")
		return
	}
	caller := callerFrom(r.Context())
	v, err := s.settings.Update(r.Context(), caller.Email, settings.Update{
		Provider:    req.Provider,
		Model:       req.Model,
		Credential:  req.Credential,
		AdminEmails: req.AdminEmails,
	})
	if errors.Is(err, settings.ErrModelRequired) {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "model is required")
		return
	}
	if errors.Is(err, settings.ErrUnknownProvider) {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "provider must be openrouter or gemini")
		return
	}
	if err != nil {
		s.logger.Error("update admin config failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not save settings")
		return
	}
	writeJSON(w, http.StatusOK, adminConfigResponse(v))
}

func adminConfigResponse(v settings.View) types.AdminConfigResponse {
	resp := types.AdminConfigResponse{
		Provider:      v.Provider,
		Model:         v.Model,
		HasCredential: v.HasCredential,
		AdminEmails:   v.AdminEmails,
		UpdatedBy:     v.UpdatedBy,
	}
	if resp.AdminEmails == nil {
		resp.AdminEmails = []string{}
	}
	if !v.UpdatedAt.IsZero() {
		resp.UpdatedAt = v.UpdatedAt.UnixMilli()
	}
	return resp
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	writeJSON(w, http.StatusOK, types.MeResponse{
		ID:        c.ID,
		Email:     c.Email,
		Entitled:  c.Entitled,
		Anonymous: !c.Authenticated(),
		Admin:     s.settings.IsAdmin(r.Context(), c.Email),
	})
}

func (s *Server) handleAdminListTrips(w http.ResponseWriter, r *http.Request) {
	limit, ok := pageLimit(w, r)
	if !ok {
		return
	}
	page, err := s.trips.ListAll(r.Context(), limit, r.URL.Query().Get("cursor"))
	if errors.Is(err, store.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "invalid cursor")
		return
	}
	if err != nil {
		s.logger.Error("admin list trips failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not load trips")
		return
	}
	total, err := s.trips.Count(r.Context())
	if err != nil {
		s.logger.Error("admin count trips failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not load trips")
		return
	}
	writeJSON(w, http.StatusOK, types.AdminTripPage{Items: page.Items, NextCursor: page.NextCursor, Total: total})
}

func (s *Server) handleAdminDeleteTrip(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	err := s.trips.Remove(r.Context(), caller.Email, chi.URLParam(r, "id"))
	if errors.Is(err, trip.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "trip not found")
		return
	}
	if err != nil {
		s.logger.Error("admin delete trip failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not delete trip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := pageLimit(w, r)
	if !ok {
		return
	}
	page, err := s.users.List(r.Context(), limit, r.URL.Query().Get("cursor"))
	if errors.Is(err, store.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "invalid cursor")
		return
	}
	if err != nil {
		s.logger.Error("admin list users failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not load users")
		return
	}
	total, err := s.users.Count(r.Context())
	if err != nil {
		s.logger.Error("admin count users failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not load users")
		return
	}
	writeJSON(w, http.StatusOK, types.AdminUserPage{Items: page.Items, NextCursor: page.NextCursor, Total: total})
}

// handleAdminDeleteUser removes the user record only; the user's trips
// stay until removed one by one.
func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	err := s.users.Delete(r.Context(), caller.Email, chi.URLParam(r, "id"))
	if errors.Is(err, user.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	if err != nil {
		s.logger.Error("admin delete user failed", "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
