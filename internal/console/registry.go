package console

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"dilution-ops-backend/internal/metrics"
	"dilution-ops-backend/internal/session"
)

// Registry keeps one console per session and drops idle ones.
type Registry struct {
	parent   context.Context
	deps     Deps
	mu       sync.Mutex
	consoles *cache.Cache
}

// NewRegistry creates a registry. Consoles untouched for idle are closed.
func NewRegistry(parent context.Context, deps Deps, idle time.Duration) *Registry {
	cleanup := idle / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	r := &Registry{
		parent:   parent,
		deps:     deps,
		consoles: cache.New(idle, cleanup),
	}
	r.consoles.OnEvicted(func(_ string, v any) {
		v.(*Console).Close()
		metrics.SetActiveConsoles(r.consoles.ItemCount())
	})
	return r
}

// Get returns the console of sess, creating it on first use. Every call
// extends the console's idle deadline.
func (r *Registry) Get(sess *session.Session) *Console {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.consoles.Get(sess.ID); ok {
		c := v.(*Console)
		r.consoles.SetDefault(sess.ID, c)
		return c
	}
	c := New(r.parent, sess, r.deps)
	r.consoles.SetDefault(sess.ID, c)
	metrics.SetActiveConsoles(r.consoles.ItemCount())
	return c
}

// Lookup returns the console of a session without creating one.
func (r *Registry) Lookup(sessionID string) (*Console, bool) {
	v, ok := r.consoles.Get(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*Console), true
}

// Drop closes and forgets the console of a session.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consoles.Delete(sessionID)
}

// Len is the number of live consoles.
func (r *Registry) Len() int {
	return r.consoles.ItemCount()
}

// Close drops every console.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.consoles.Items() {
		r.consoles.Delete(id)
	}
}
