package conversation

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Registry holds live sessions by id. Sessions not touched for the idle
// timeout are dropped.
type Registry struct {
	sessions *cache.Cache
}

func NewRegistry(idle time.Duration) *Registry {
	return &Registry{sessions: cache.New(idle, idle/2+time.Second)}
}

// Get returns the session and refreshes its expiry.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	r.sessions.SetDefault(id, s)
	return s, true
}

func (r *Registry) Put(s *Session) { r.sessions.SetDefault(s.ID(), s) }

func (r *Registry) Delete(id string) { r.sessions.Delete(id) }

func (r *Registry) Len() int { return r.sessions.ItemCount() }
