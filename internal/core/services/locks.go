package services

import (
	"sync"

	"watchparty/internal/core/domain"
)

// SessionLocks serializes mutations to a single session's roster and
// playback state while letting unrelated sessions proceed in parallel.
// Presence and sync share one instance so their mutations interleave safely.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[domain.SessionID]*sync.Mutex
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[domain.SessionID]*sync.Mutex)}
}

// Lock acquires the session's mutex and returns its unlock function.
func (l *SessionLocks) Lock(id domain.SessionID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Forget drops the mutex for a deleted session.
func (l *SessionLocks) Forget(id domain.SessionID) {
	l.mu.Lock()
	delete(l.locks, id)
	l.mu.Unlock()
}
