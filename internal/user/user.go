// Package user holds the record kept for every signed-in caller.
package user

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

// User is keyed by the identity provider's subject id, the same id that
// owns trips.
type User struct {
	ID         string    `json:"id" bson:"user_id"`
	Email      string    `json:"email,omitempty" bson:"email"`
	Name       string    `json:"name,omitempty" bson:"name"`
	ImageURL   string    `json:"image_url,omitempty" bson:"image_url"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at" bson:"last_seen_at"`
}

// Page is one page of users, newest first. NextCursor is empty on the last
// page.
type Page struct {
	Items      []User `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}
