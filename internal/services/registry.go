package services

import (
	"context"
	"sync"
	"time"

	"chat-sync/internal/models"
	"chat-sync/pkg/logger"

	"golang.org/x/sync/singleflight"
)

const DefaultSessionIdleTimeout = 30 * time.Minute

// SessionRegistry keeps one open session per actor and closes sessions that
// have been idle for longer than the idle timeout.
type SessionRegistry struct {
	deps        SessionDeps
	idleTimeout time.Duration

	sessions map[string]*Session
	mutex    sync.Mutex
	opening  singleflight.Group

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSessionRegistry(deps SessionDeps, idleTimeout time.Duration) *SessionRegistry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultSessionIdleTimeout
	}
	if deps.Gate == nil {
		deps.Gate = NewSetupGate(deps.Backend)
	}

	r := &SessionRegistry{
		deps:        deps,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*Session),
		stop:        make(chan struct{}),
	}

	go r.cleanupIdleSessions()
	return r
}

// GetOrOpen returns the actor's session, opening it on first use. Concurrent
// first calls for the same actor share one Open.
func (r *SessionRegistry) GetOrOpen(ctx context.Context, actor *models.Actor) (*Session, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthenticated
	}

	if s := r.get(actor.ID); s != nil {
		return s, nil
	}

	v, err, _ := r.opening.Do(actor.ID, func() (interface{}, error) {
		if s := r.get(actor.ID); s != nil {
			return s, nil
		}

		s, err := NewSession(actor, r.deps)
		if err != nil {
			return nil, err
		}
		if err := s.Open(ctx); err != nil {
			s.Close()
			return nil, err
		}

		r.mutex.Lock()
		r.sessions[actor.ID] = s
		r.mutex.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *SessionRegistry) get(actorID string) *Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.sessions[actorID]
	if !ok || s.Closed() {
		return nil
	}
	return s
}

// Close closes and forgets the actor's session.
func (r *SessionRegistry) Close(actorID string) error {
	r.mutex.Lock()
	s, ok := r.sessions[actorID]
	delete(r.sessions, actorID)
	r.mutex.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

func (r *SessionRegistry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.sessions)
}

// SweepIdle closes every session unused since before now minus the idle
// timeout and returns how many were closed. Sessions with watchers are live
// viewers and are kept however long they have been quiet.
func (r *SessionRegistry) SweepIdle(now time.Time) int {
	r.mutex.Lock()
	var idle []*Session
	for actorID, s := range r.sessions {
		if s.Closed() || (s.Watching() == 0 && now.Sub(s.LastUsed()) > r.idleTimeout) {
			idle = append(idle, s)
			delete(r.sessions, actorID)
		}
	}
	r.mutex.Unlock()

	for _, s := range idle {
		s.Close()
		logger.Debug("Cleaned up idle session for actor %s", s.Actor().ID)
	}
	return len(idle)
}

func (r *SessionRegistry) cleanupIdleSessions() {
	interval := r.idleTimeout / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.SweepIdle(now)
		}
	}
}

// Shutdown stops the cleanup routine and closes every session.
func (r *SessionRegistry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mutex.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	logger.Info("Closed %d sessions", len(sessions))
}
