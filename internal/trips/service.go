// Package trips saves finished plans for their owner and serves them back.
package trips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripwise-backend/internal/trip"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

var ErrOwnerRequired = errors.New("trips: owner id is required")

// Store holds trip records. Records are never updated once inserted.
type Store interface {
	InsertTrip(ctx context.Context, rec trip.Record) error
	// ListTrips returns the owner's records newest first, starting after
	// cursor when it is not empty.
	ListTrips(ctx context.Context, ownerID string, limit int, cursor string) (trip.Page, error)
	GetTrip(ctx context.Context, ownerID, id string) (*trip.Record, error)
	DeleteTrip(ctx context.Context, ownerID, id string) error

	// ListAllTrips pages through every owner's records, newest first.
	ListAllTrips(ctx context.Context, limit int, cursor string) (trip.Page, error)
	CountTrips(ctx context.Context) (int64, error)
	// RemoveTrip deletes a record whoever owns it.
	RemoveTrip(ctx context.Context, id string) error
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now, newID: uuid.NewString}
}

// Save stores plan under a fresh id and returns it.
func (s *Service) Save(ctx context.Context, ownerID string, plan trip.Plan) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", ErrOwnerRequired
	}
	rec := trip.Record{
		ID:      s.newID(),
		OwnerID: ownerID,
		Plan:    plan,
		// every backend keeps at least millisecond precision
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.InsertTrip(ctx, rec); err != nil {
		return "", fmt.Errorf("insert trip: %w", err)
	}
	s.logger.Info("trip saved", "trip_id", rec.ID, "owner", ownerID, "destination", plan.Destination)
	return rec.ID, nil
}

// List returns one page of the owner's trips. pageSize falls back to
// DefaultPageSize and is capped at MaxPageSize.
func (s *Service) List(ctx context.Context, ownerID string, pageSize int, cursor string) (trip.Page, error) {
	if strings.TrimSpace(ownerID) == "" {
		return trip.Page{}, ErrOwnerRequired
	}
	page, err := s.store.ListTrips(ctx, ownerID, PageSize(pageSize), cursor)
	if err != nil {
		return trip.Page{}, fmt.Errorf("list trips: %w", err)
	}
	if page.Items == nil {
		page.Items = []trip.Record{}
	}
	return page, nil
}

// ListAll returns one page of every owner's trips for administration.
func (s *Service) ListAll(ctx context.Context, pageSize int, cursor string) (trip.Page, error) {
	page, err := s.store.ListAllTrips(ctx, PageSize(pageSize), cursor)
	if err != nil {
		return trip.Page{}, fmt.Errorf("list all trips: %w", err)
	}
	if page.Items == nil {
		page.Items = []trip.Record{}
	}
	return page, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.store.CountTrips(ctx)
	if err != nil {
		return 0, fmt.Errorf("count trips: %w", err)
	}
	return n, nil
}

// Remove deletes a trip regardless of its owner.
func (s *Service) Remove(ctx context.Context, by, id string) error {
	if err := s.store.RemoveTrip(ctx, id); err != nil {
		return fmt.Errorf("remove trip %s: %w", id, err)
	}
	s.logger.Info("trip removed by admin", "trip_id", id, "admin", by)
	return nil
}

// PageSize falls back to DefaultPageSize and caps at MaxPageSize.
func PageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*trip.Record, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerRequired
	}
	rec, err := s.store.GetTrip(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("get trip %s: %w", id, err)
	}
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrOwnerRequired
	}
	if err := s.store.DeleteTrip(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete trip %s: %w", id, err)
	}
	s.logger.Info("trip deleted", "trip_id", id, "owner", ownerID)
	return nil
}
