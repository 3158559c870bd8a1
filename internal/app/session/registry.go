package session

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// ErrUnknownSession is returned for a session ID that is not open.
var ErrUnknownSession = errors.New("unknown session")

// Registry manages the open sessions with thread-safe access.
type Registry struct {
	mu       sync.RWMutex
	api      API
	opts     Options
	sessions map[string]*Manager
}

// NewRegistry creates a registry whose sessions share api and opts.
func NewRegistry(api API, opts Options) *Registry {
	return &Registry{
		api:      api,
		opts:     opts,
		sessions: make(map[string]*Manager),
	}
}

// Open creates a new session and returns it.
func (r *Registry) Open() *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	m := NewManager(id, r.api, r.opts)
	r.sessions[id] = m

	zlog.Info().Msgf("session opened: session_id=%s open_sessions=%d", id, len(r.sessions))
	return m
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) (*Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSession, "%q", id)
	}
	return m, nil
}

// Close closes a session and forgets it.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	m, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrUnknownSession, "%q", id)
	}
	m.Close()
	return nil
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Manager)
	r.mu.Unlock()

	for _, m := range sessions {
		m.Close()
	}
}

// IDs returns the open session IDs, oldest first.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Manager, 0, len(r.sessions))
	for _, m := range r.sessions {
		sessions = append(sessions, m)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt().Before(sessions[j].CreatedAt())
	})

	ids := make([]string, len(sessions))
	for i, m := range sessions {
		ids[i] = m.ID()
	}
	return ids
}

// Count returns the number of open sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
