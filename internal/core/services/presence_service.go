package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"go.uber.org/zap"
)

type presenceService struct {
	sessionRepo     ports.SessionRepository
	participantRepo ports.ParticipantRepository
	userRepo        ports.UserRepository
	conns           ports.ConnectionCounter
	locks           *SessionLocks
	logger          *zap.SugaredLogger
}

func NewPresenceService(
	sessionRepo ports.SessionRepository,
	participantRepo ports.ParticipantRepository,
	userRepo ports.UserRepository,
	conns ports.ConnectionCounter,
	locks *SessionLocks,
	logger *zap.SugaredLogger,
) ports.PresenceService {
	return &presenceService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		userRepo:        userRepo,
		conns:           conns,
		locks:           locks,
		logger:          logger,
	}
}

func (s *presenceService) Join(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (*domain.Session, []*domain.Participant, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	// Deactivation is terminal: an ended session behaves like a missing one.
	if !session.Active {
		return nil, nil, domain.ErrSessionNotFound
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	participant := &domain.Participant{
		SessionID: sessionID,
		UserID:    userID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		JoinedAt:  time.Now(),
	}
	if err := s.participantRepo.Upsert(ctx, participant); err != nil {
		return nil, nil, fmt.Errorf("failed to upsert participant: %w", err)
	}

	roster, err := s.participantRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list roster: %w", err)
	}

	s.logger.Infow("user joined session",
		"session_id", sessionID,
		"user_id", userID,
		"roster_size", len(roster),
	)
	return session, roster, nil
}

func (s *presenceService) Leave(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (bool, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	return s.removeLocked(ctx, sessionID, userID)
}

func (s *presenceService) Disconnect(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (bool, bool, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	// A user with other tabs still open stays on the roster; only the last
	// connection's close marks them absent.
	if s.conns.LiveCount(sessionID, userID) > 0 {
		return false, false, nil
	}

	deactivated, err := s.removeLocked(ctx, sessionID, userID)
	return err == nil, deactivated, err
}

// removeLocked deletes the roster entry and deactivates the session when the
// roster became empty. Caller holds the session lock.
func (s *presenceService) removeLocked(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (bool, error) {
	if err := s.participantRepo.Remove(ctx, sessionID, userID); err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}

	count, err := s.participantRepo.CountBySession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to count roster: %w", err)
	}
	if count > 0 {
		s.logger.Infow("user left session", "session_id", sessionID, "user_id", userID, "roster_size", count)
		return false, nil
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if !session.Active {
		return false, nil
	}

	session.Active = false
	session.UpdatedAt = time.Now()
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}

	s.logger.Infow("session deactivated, roster empty", "session_id", sessionID)
	return true, nil
}

func (s *presenceService) RosterSnapshot(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	return s.participantRepo.ListBySession(ctx, sessionID)
}
