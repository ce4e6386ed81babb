package services

import (
	"context"
	"fmt"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/utils"
)

type sessionService struct {
	sessionRepo ports.SessionRepository
	userRepo    ports.UserRepository
}

func NewSessionService(sessionRepo ports.SessionRepository, userRepo ports.UserRepository) ports.SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
	}
}

func (s *sessionService) CreateSession(ctx context.Context, title string, hostID domain.UserID) (*domain.Session, error) {
	if _, err := s.userRepo.GetByID(ctx, hostID); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &domain.Session{
		ID:     domain.SessionID(utils.NewSessionID()),
		Title:  title,
		HostID: hostID,
		Playback: domain.PlaybackState{
			Action:      domain.ActionPause,
			TimeSeconds: 0,
			UpdatedAt:   now,
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (s *sessionService) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.sessionRepo.GetByID(ctx, id)
}

func (s *sessionService) ListActiveSessions(ctx context.Context) ([]*domain.Session, error) {
	return s.sessionRepo.ListActive(ctx)
}
