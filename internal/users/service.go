// Package users records every signed-in caller so administrators can list
// and remove them.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"tripwise-backend/internal/identity"
	"tripwise-backend/internal/user"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Store interface {
	// UpsertUser inserts u or refreshes its profile and last-seen time,
	// keeping the stored CreatedAt.
	UpsertUser(ctx context.Context, u user.User) error
	// ListUsers returns users newest first, starting after cursor when it
	// is not empty.
	ListUsers(ctx context.Context, limit int, cursor string) (user.Page, error)
	CountUsers(ctx context.Context) (int64, error)
	DeleteUser(ctx context.Context, id string) error
}

// Service writes a caller at most once per refresh interval unless their
// profile changes in between.
type Service struct {
	store  Store
	logger *slog.Logger
	seen   *cache.Cache
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger, refresh time.Duration) *Service {
	return &Service{
		store:  store,
		logger: logger,
		seen:   cache.New(refresh, 2*refresh),
		now:    time.Now,
	}
}

// Register records an authenticated caller. Anonymous callers are ignored.
func (s *Service) Register(ctx context.Context, c identity.Caller) error {
	if !c.Authenticated() {
		return nil
	}
	profile := strings.Join([]string{c.Email, c.Name, c.Picture}, "\x00")
	if v, found := s.seen.Get(c.ID); found && v.(string) == profile {
		return nil
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	err := s.store.UpsertUser(ctx, user.User{
		ID:         c.ID,
		Email:      c.Email,
		Name:       c.Name,
		ImageURL:   c.Picture,
		CreatedAt:  now,
		LastSeenAt: now,
	})
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", c.ID, err)
	}
	s.seen.SetDefault(c.ID, profile)
	return nil
}

// List returns one page of users. pageSize falls back to DefaultPageSize
// and is capped at MaxPageSize.
func (s *Service) List(ctx context.Context, pageSize int, cursor string) (user.Page, error) {
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	page, err := s.store.ListUsers(ctx, pageSize, cursor)
	if err != nil {
		return user.Page{}, fmt.Errorf("list users: %w", err)
	}
	if page.Items == nil {
		page.Items = []user.User{}
	}
	return page, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Delete removes the user record. Their trips are kept.
func (s *Service) Delete(ctx context.Context, by, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	s.seen.Delete(id)
	s.logger.Info("user deleted", "user_id", id, "admin", by)
	return nil
}
