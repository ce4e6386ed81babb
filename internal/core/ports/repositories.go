package ports

import (
	"context"

	"watchparty/internal/core/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id domain.SessionID) error
	ListActive(ctx context.Context) ([]*domain.Session, error)
	ListAll(ctx context.Context) ([]*domain.Session, error)
}

type ParticipantRepository interface {
	// Upsert inserts the participant or, if the (session, user) pair already
	// exists, refreshes the stored row.
	Upsert(ctx context.Context, p *domain.Participant) error
	Remove(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error
	RemoveBySession(ctx context.Context, sessionID domain.SessionID) error
	// ListBySession returns the roster ordered by join time ascending.
	ListBySession(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error)
	CountBySession(ctx context.Context, sessionID domain.SessionID) (int, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
