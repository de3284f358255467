package store

import (
	"context"
	"sort"
	"sync"

	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/user"
)

// MemoryStore keeps everything in process memory. Reads return copies so
// callers never share slices with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	config *settings.AdminConfig
	trips  map[string]trip.Record
	users  map[string]user.User
	// onChange runs after every successful write while the lock is held.
	onChange func(snapshot) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]trip.Record), users: make(map[string]user.User)}
}

func (m *MemoryStore) LatestAdminConfig(ctx context.Context) (*settings.AdminConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, nil
	}
	c := copyConfig(*m.config)
	return &c, nil
}

// SaveAdminConfig replaces the held revision; older revisions are not
// kept, which is what pruning amounts to here.
func (m *MemoryStore) SaveAdminConfig(ctx context.Context, cfg settings.AdminConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.config
	c := copyConfig(cfg)
	m.config = &c
	if err := m.changedLocked(); err != nil {
		m.config = prev
		return err
	}
	return nil
}

func (m *MemoryStore) InsertTrip(ctx context.Context, rec trip.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trips[rec.ID]; exists {
		return trip.ErrConflict
	}
	m.trips[rec.ID] = rec
	if err := m.changedLocked(); err != nil {
		delete(m.trips, rec.ID)
		return err
	}
	return nil
}

func (m *MemoryStore) ListTrips(ctx context.Context, ownerID string, limit int, cur string) (trip.Page, error) {
	return m.listTrips(func(r trip.Record) bool { return r.OwnerID == ownerID }, limit, cur)
}

// ListAllTrips pages through every owner's trips.
func (m *MemoryStore) ListAllTrips(ctx context.Context, limit int, cur string) (trip.Page, error) {
	return m.listTrips(func(trip.Record) bool { return true }, limit, cur)
}

func (m *MemoryStore) listTrips(keep func(trip.Record) bool, limit int, cur string) (trip.Page, error) {
	after, err := decodeCursor(cur)
	if err != nil {
		return trip.Page{}, err
	}
	m.mu.RLock()
	var found []trip.Record
	for _, r := range m.trips {
		if keep(r) && after.after(r.CreatedAt, r.ID) {
			found = append(found, r)
		}
	}
	m.mu.RUnlock()

	less := newer(tripKey)
	sort.Slice(found, func(i, j int) bool { return less(found[i], found[j]) })
	if len(found) > limit+1 {
		found = found[:limit+1]
	}
	return tripPage(found, limit), nil
}

func (m *MemoryStore) CountTrips(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.trips)), nil
}

func (m *MemoryStore) GetTrip(ctx context.Context, ownerID, id string) (*trip.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.trips[id]
	if !ok || r.OwnerID != ownerID {
		return nil, trip.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) DeleteTrip(ctx context.Context, ownerID, id string) error {
	return m.removeTrip(id, func(r trip.Record) bool { return r.OwnerID == ownerID })
}

// RemoveTrip deletes a trip whoever owns it.
func (m *MemoryStore) RemoveTrip(ctx context.Context, id string) error {
	return m.removeTrip(id, func(trip.Record) bool { return true })
}

func (m *MemoryStore) removeTrip(id string, allowed func(trip.Record) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.trips[id]
	if !ok || !allowed(r) {
		return trip.ErrNotFound
	}
	delete(m.trips, id)
	if err := m.changedLocked(); err != nil {
		m.trips[id] = r
		return err
	}
	return nil
}

// UpsertUser creates the user or refreshes its profile and last-seen
// time. CreatedAt is only taken from u on insert.
func (m *MemoryStore) UpsertUser(ctx context.Context, u user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, exists := m.users[u.ID]
	next := u
	if exists {
		next.CreatedAt = prev.CreatedAt
	}
	m.users[u.ID] = next
	if err := m.changedLocked(); err != nil {
		if exists {
			m.users[u.ID] = prev
		} else {
			delete(m.users, u.ID)
		}
		return err
	}
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context, limit int, cur string) (user.Page, error) {
	after, err := decodeCursor(cur)
	if err != nil {
		return user.Page{}, err
	}
	m.mu.RLock()
	var found []user.User
	for _, u := range m.users {
		if after.after(u.CreatedAt, u.ID) {
			found = append(found, u)
		}
	}
	m.mu.RUnlock()

	less := newer(userKey)
	sort.Slice(found, func(i, j int) bool { return less(found[i], found[j]) })
	if len(found) > limit+1 {
		found = found[:limit+1]
	}
	return userPage(found, limit), nil
}

func (m *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.ErrNotFound
	}
	delete(m.users, id)
	if err := m.changedLocked(); err != nil {
		m.users[id] = u
		return err
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

func (m *MemoryStore) changedLocked() error {
	if m.onChange == nil {
		return nil
	}
	return m.onChange(m.snapshotLocked())
}

func (m *MemoryStore) snapshotLocked() snapshot {
	s := snapshot{
		Trips: make([]trip.Record, 0, len(m.trips)),
		Users: make([]user.User, 0, len(m.users)),
	}
	if m.config != nil {
		c := copyConfig(*m.config)
		s.AdminConfig = &c
	}
	for _, r := range m.trips {
		s.Trips = append(s.Trips, r)
	}
	for _, u := range m.users {
		s.Users = append(s.Users, u)
	}
	byTrip, byUser := newer(tripKey), newer(userKey)
	sort.Slice(s.Trips, func(i, j int) bool { return byTrip(s.Trips[i], s.Trips[j]) })
	sort.Slice(s.Users, func(i, j int) bool { return byUser(s.Users[i], s.Users[j]) })
	return s
}

func (m *MemoryStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = s.AdminConfig
	m.trips = make(map[string]trip.Record, len(s.Trips))
	for _, r := range s.Trips {
		m.trips[r.ID] = r
	}
	m.users = make(map[string]user.User, len(s.Users))
	for _, u := range s.Users {
		m.users[u.ID] = u
	}
}

func copyConfig(c settings.AdminConfig) settings.AdminConfig {
	c.AdminEmails = append([]string(nil), c.AdminEmails...)
	return c
}
