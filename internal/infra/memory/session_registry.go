package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"guild-quiz-service/internal/domain"
)

// SessionRegistry is an in-process implementation of app.SessionRegistry.
// The map is guarded by one RWMutex; each session carries its own mutex so
// answers to different sessions do not contend.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionKey]*session
	now      func() time.Time
}

type session struct {
	mu           sync.Mutex
	key          domain.SessionKey
	target       domain.Target
	quiz         domain.Quiz
	participants map[string]struct{}
	createdAt    time.Time
	deadline     time.Time
	status       domain.SessionStatus
}

func NewSessionRegistry() *SessionRegistry {
	return NewSessionRegistryWithClock(time.Now)
}

// NewSessionRegistryWithClock allows deterministic timestamps in tests.
func NewSessionRegistryWithClock(now func() time.Time) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[domain.SessionKey]*session),
		now:      now,
	}
}

func (r *SessionRegistry) Open(_ context.Context, key domain.SessionKey, target domain.Target, quiz domain.Quiz, deadline time.Time) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[key]; ok {
		existing.mu.Lock()
		open := existing.status == domain.SessionOpen
		existing.mu.Unlock()
		if open {
			return domain.Session{}, domain.ErrDuplicateSession
		}
	}

	s := &session{
		key:          key,
		target:       target,
		quiz:         quiz,
		participants: make(map[string]struct{}),
		createdAt:    r.now(),
		deadline:     deadline,
		status:       domain.SessionOpen,
	}
	r.sessions[key] = s
	return s.snapshotLocked(), nil
}

func (r *SessionRegistry) Get(_ context.Context, key domain.SessionKey) (domain.Session, bool, error) {
	s, ok := r.lookup(key)
	if !ok {
		return domain.Session{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), true, nil
}

func (r *SessionRegistry) RecordParticipant(_ context.Context, key domain.SessionKey, userID string) (bool, int, error) {
	s, ok := r.lookup(key)
	if !ok {
		return false, 0, domain.ErrSessionNotOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.SessionOpen {
		return false, 0, domain.ErrSessionNotOpen
	}
	if _, seen := s.participants[userID]; seen {
		return true, len(s.participants), nil
	}
	s.participants[userID] = struct{}{}
	return false, len(s.participants), nil
}

func (r *SessionRegistry) Close(_ context.Context, key domain.SessionKey) (domain.Session, error) {
	s, ok := r.lookup(key)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == domain.SessionClosed {
		return domain.Session{}, domain.ErrAlreadyClosed
	}
	s.status = domain.SessionClosed
	return s.snapshotLocked(), nil
}

func (r *SessionRegistry) Evict(_ context.Context, key domain.SessionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil
	}
	s.mu.Lock()
	open := s.status == domain.SessionOpen
	s.mu.Unlock()
	if open {
		return domain.ErrSessionStillOpen
	}
	delete(r.sessions, key)
	return nil
}

// Len reports the number of sessions held, open or closed-but-not-evicted.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) lookup(key domain.SessionKey) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

func (s *session) snapshotLocked() domain.Session {
	participants := make([]string, 0, len(s.participants))
	for id := range s.participants {
		participants = append(participants, id)
	}
	sort.Strings(participants)
	return domain.Session{
		Key:          s.key,
		Target:       s.target,
		Quiz:         s.quiz,
		Participants: participants,
		CreatedAt:    s.createdAt,
		Deadline:     s.deadline,
		Status:       s.status,
	}
}
