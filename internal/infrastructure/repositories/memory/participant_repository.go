package memory

import (
	"context"
	"sort"
	"sync"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
)

type MemoryParticipantRepository struct {
	rosters map[domain.SessionID]map[domain.UserID]*domain.Participant
	mu      sync.RWMutex
}

func NewMemoryParticipantRepository() ports.ParticipantRepository {
	return &MemoryParticipantRepository{
		rosters: make(map[domain.SessionID]map[domain.UserID]*domain.Participant),
	}
}

func (r *MemoryParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster, ok := r.rosters[p.SessionID]
	if !ok {
		roster = make(map[domain.UserID]*domain.Participant)
		r.rosters[p.SessionID] = roster
	}

	stored := *p
	roster[p.UserID] = &stored
	return nil
}

func (r *MemoryParticipantRepository) Remove(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roster, ok := r.rosters[sessionID]; ok {
		delete(roster, userID)
		if len(roster) == 0 {
			delete(r.rosters, sessionID)
		}
	}
	return nil
}

func (r *MemoryParticipantRepository) RemoveBySession(ctx context.Context, sessionID domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rosters, sessionID)
	return nil
}

func (r *MemoryParticipantRepository) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := r.rosters[sessionID]
	list := make([]*domain.Participant, 0, len(roster))
	for _, p := range roster {
		copy := *p
		list = append(list, &copy)
	}

	// Join order doubles as the candidate order for any future host handoff.
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].UserID < list[j].UserID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list, nil
}

func (r *MemoryParticipantRepository) CountBySession(ctx context.Context, sessionID domain.SessionID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rosters[sessionID]), nil
}
