package users_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"tripwise-backend/internal/identity"
	"tripwise-backend/internal/store"
	"tripwise-backend/internal/user"
	"tripwise-backend/internal/users"
)

// countingStore counts writes so the refresh throttle can be observed.
type countingStore struct {
	*store.MemoryStore
	upserts int
}

func (c *countingStore) UpsertUser(ctx context.Context, u user.User) error {
	c.upserts++
	return c.MemoryStore.UpsertUser(ctx, u)
}

func newService() (*users.Service, *countingStore) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	return users.NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour), st
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, st := newService()

	if err := svc.Register(ctx, identity.Caller{Address: "10.0.0.1"}); err != nil {
		t.Fatalf("Register anonymous: %v", err)
	}
	if st.upserts != 0 {
		t.Fatal("anonymous callers must not be recorded")
	}

	ada := identity.Caller{ID: "sub-1", Email: "ada@example.com", Name: "Ada"}
	for i := 0; i < 3; i++ {
		if err := svc.Register(ctx, ada); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if st.upserts != 1 {
		t.Fatalf("repeat sign-ins within the refresh interval wrote %d times, want 1", st.upserts)
	}

	first, err := svc.List(ctx, 0, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	created := first.Items[0].CreatedAt

	ada.Name = "Ada Lovelace"
	if err := svc.Register(ctx, ada); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if st.upserts != 2 {
		t.Fatalf("a profile change must be written, got %d writes", st.upserts)
	}
	p, err := svc.List(ctx, 0, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].Name != "Ada Lovelace" || !p.Items[0].CreatedAt.Equal(created) {
		t.Fatalf("expected one refreshed user keeping its creation time, got %+v", p.Items)
	}
}

func TestListCountDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	for _, id := range []string{"sub-1", "sub-2", "sub-3"} {
		if err := svc.Register(ctx, identity.Caller{ID: id}); err != nil {
			t.Fatalf("Register %s: %v", id, err)
		}
	}
	if n, err := svc.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}

	p, err := svc.List(ctx, 2, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(p.Items) != 2 || p.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", p)
	}
	rest, err := svc.List(ctx, 2, p.NextCursor)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextCursor != "" {
		t.Fatalf("expected the last user alone, got %+v", rest)
	}

	if err := svc.Delete(ctx, "root@example.com", "sub-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, "root@example.com", "sub-2"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on a second delete, got %v", err)
	}
	if n, _ := svc.Count(ctx); n != 2 {
		t.Fatalf("Count after delete = %d, want 2", n)
	}
	// a deleted user who signs in again is recorded again
	if err := svc.Register(ctx, identity.Caller{ID: "sub-2"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n, _ := svc.Count(ctx); n != 3 {
		t.Fatalf("Count after re-registration = %d, want 3", n)
	}
}
