package trip

import "errors"

// ErrNotFound is returned for a trip that does not exist or belongs to
// someone else.
var ErrNotFound = errors.New("trip not found")

// ErrConflict is returned when a trip id is already taken.
var ErrConflict = errors.New("trip already exists")
