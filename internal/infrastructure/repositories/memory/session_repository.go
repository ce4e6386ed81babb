package memory

import (
	"context"
	"fmt"
	"sync"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
)

type MemorySessionRepository struct {
	sessions map[domain.SessionID]*domain.Session
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("session already exists: %s", session.ID)
	}

	stored := *session
	r.sessions[session.ID] = &stored
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	copy := *session
	return &copy, nil
}

func (r *MemorySessionRepository) Update(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}

	stored := *session
	r.sessions[session.ID] = &stored
	return nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return domain.ErrSessionNotFound
	}

	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) ListActive(ctx context.Context) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*domain.Session
	for _, session := range r.sessions {
		if session.Active {
			copy := *session
			active = append(active, &copy)
		}
	}
	return active, nil
}

func (r *MemorySessionRepository) ListAll(ctx context.Context) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		copy := *session
		all = append(all, &copy)
	}
	return all, nil
}
