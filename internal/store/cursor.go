// Package store implements the document store behind the admin settings,
// the saved trips and the user records: in memory, as a JSON file, in
// PostgreSQL or in MongoDB.
package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/user"
)

var ErrInvalidCursor = errors.New("store: invalid cursor")

// cursor is the position after the last record of a page. Trips and users
// are both ordered by created_at then id, descending.
type cursor struct {
	createdAt time.Time
	id        string
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixMilli(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ms, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &cursor{createdAt: time.UnixMilli(n).UTC(), id: id}, nil
}

// after reports whether the key (createdAt, id) sorts after the cursor
// position.
func (c *cursor) after(createdAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	t := createdAt.Truncate(time.Millisecond)
	if !t.Equal(c.createdAt) {
		return t.Before(c.createdAt)
	}
	return id < c.id
}

func tripKey(r trip.Record) (time.Time, string) { return r.CreatedAt, r.ID }

func userKey(u user.User) (time.Time, string) { return u.CreatedAt, u.ID }

// newer orders records newest first by the pagination key.
func newer[T any](key func(T) (time.Time, string)) func(a, b T) bool {
	return func(a, b T) bool {
		at, aID := key(a)
		bt, bID := key(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return aID > bID
	}
}

// trim cuts fetched (at most limit+1 records, already ordered) to limit
// and returns the next cursor when more remain.
func trim[T any](fetched []T, limit int, key func(T) (time.Time, string)) ([]T, string) {
	if len(fetched) <= limit {
		return fetched, ""
	}
	items := fetched[:limit]
	at, id := key(items[len(items)-1])
	return items, encodeCursor(at, id)
}

func tripPage(fetched []trip.Record, limit int) trip.Page {
	items, next := trim(fetched, limit, tripKey)
	return trip.Page{Items: items, NextCursor: next}
}

func userPage(fetched []user.User, limit int) user.Page {
	items, next := trim(fetched, limit, userKey)
	return user.Page{Items: items, NextCursor: next}
}
