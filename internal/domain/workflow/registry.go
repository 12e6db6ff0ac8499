package workflow

import (
	"fmt"
	"loan-simulator/internal/pkg/apperrors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session pairs a controller with its bookkeeping in the registry.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Controller *Controller

	mu           sync.Mutex
	lastActivity time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// ControllerFactory builds the controller for a new session id.
type ControllerFactory func(id string) *Controller

// Registry keeps workflow sessions in memory. Nothing survives a restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  ControllerFactory
	now      func() time.Time
}

func NewRegistry(factory ControllerFactory, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		now:      now,
	}
}

func (r *Registry) Create() *Session {
	id := uuid.NewString()
	now := r.now()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		Controller:   r.factory(id),
		lastActivity: now,
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Get returns the session and marks it active.
func (r *Registry) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: session %q", apperrors.ErrNotFound, id)
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	s.touch(r.now())
	return s, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	s.Controller.Close()
	return nil
}

// Sweep drops sessions idle for longer than idle and returns their ids.
func (r *Registry) Sweep(idle time.Duration) []string {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		s.Controller.Close()
		ids = append(ids, s.ID)
	}
	return ids
}

// Range calls fn for each session until fn returns false. The registry is
// not locked while fn runs.
func (r *Registry) Range(fn func(*Session) bool) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
