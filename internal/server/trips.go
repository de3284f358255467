package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tripwise-backend/internal/store"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
)

// pageLimit reads the optional limit query parameter. It writes a 400 and
// returns false when the value is not a non-negative number.
func pageLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "limit must be a positive number")
		return 0, false
	}
	return n, true
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	limit, ok := pageLimit(w, r)
	if !ok {
		return
	}
	page, err := s.trips.List(r.Context(), caller.ID, limit, r.URL.Query().Get("cursor"))
	if errors.Is(err, store.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "invalid cursor")
		return
	}
	if err != nil {
		s.logger.Error("list trips failed", "owner", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not load trips")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	rec, err := s.trips.Get(r.Context(), caller.ID, chi.URLParam(r, "id"))
	if errors.Is(err, trip.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "trip not found")
		return
	}
	if err != nil {
		s.logger.Error("get trip failed", "owner", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not load trip")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	err := s.trips.Delete(r.Context(), caller.ID, chi.URLParam(r, "id"))
	if errors.Is(err, trip.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "trip not found")
		return
	}
	if err != nil {
		s.logger.Error("delete trip failed", "owner", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not delete trip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSaveTrip stores a finished plan for the caller. Clients that run
// the conversation themselves use it once the final turn succeeds.
func (s *Server) handleSaveTrip(w http.ResponseWriter, r *http.Request) {
	var req types.SaveTripRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "invalid JSON body")
		return
	}
	if req.Plan == nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, "trip_plan is required")
		return
	}
	if !req.Plan.Complete() {
		writeError(w, http.StatusBadRequest, types.ErrIncompleteTripPlan,
			"trip_plan is missing "+strings.Join(req.Plan.Missing(), ", "))
		return
	}
	if err := req.Plan.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidInput, err.Error())
		return
	}

	caller := callerFrom(r.Context())
	id, err := s.trips.Save(r.Context(), caller.ID, *req.Plan)
	if err != nil {
		s.logger.Error("save trip failed", "owner", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, types.ErrServer, "could not save trip")
		return
	}
	writeJSON(w, http.StatusCreated, types.SaveTripResponse{ID: id})
}
