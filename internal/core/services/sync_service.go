package services

import (
	"context"
	"fmt"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"go.uber.org/zap"
)

type syncService struct {
	sessionRepo ports.SessionRepository
	resolver    ports.VideoResolver
	locks       *SessionLocks
	logger      *zap.SugaredLogger
}

func NewSyncService(
	sessionRepo ports.SessionRepository,
	resolver ports.VideoResolver,
	locks *SessionLocks,
	logger *zap.SugaredLogger,
) ports.SyncService {
	return &syncService{
		sessionRepo: sessionRepo,
		resolver:    resolver,
		locks:       locks,
		logger:      logger,
	}
}

func (s *syncService) SetVideo(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, provider, videoID string) (*domain.Session, error) {
	video, err := s.resolver.Resolve(ctx, provider, videoID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, domain.ErrSessionInactive
	}
	if session.HostID != userID {
		return nil, domain.ErrNotHost
	}

	now := time.Now()
	session.Video = video
	session.Playback = domain.PlaybackState{
		Action:      domain.ActionPause,
		TimeSeconds: 0,
		UpdatedAt:   now,
	}
	session.UpdatedAt = now

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session video: %w", err)
	}

	s.logger.Infow("video assigned",
		"session_id", sessionID,
		"provider", video.Provider,
		"video_id", video.ID,
	)
	return session, nil
}

func (s *syncService) ApplyAction(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, action domain.PlaybackAction, timeSeconds float64) (*domain.PlaybackState, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("invalid playback action %q", action)
	}
	if timeSeconds < 0 {
		return nil, fmt.Errorf("negative playback time %f", timeSeconds)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, domain.ErrSessionInactive
	}
	if session.HostID != userID {
		// Non-host playback commands are dropped, never broadcast. The
		// caller decides whether to log; no state changes here.
		return nil, domain.ErrNotHost
	}

	now := time.Now()
	session.Playback = domain.PlaybackState{
		Action:      action,
		TimeSeconds: timeSeconds,
		UpdatedAt:   now,
	}
	session.UpdatedAt = now

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update playback state: %w", err)
	}

	state := session.Playback
	return &state, nil
}

func (s *syncService) CurrentTime(ctx context.Context, sessionID domain.SessionID) (float64, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return session.Playback.PositionAt(time.Now()), nil
}

func (s *syncService) JoinSnapshot(ctx context.Context, sessionID domain.SessionID) (*domain.Video, *domain.PlaybackState, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	// A playing session's position keeps advancing; the snapshot carries the
	// extrapolated time so the late joiner lands in sync immediately.
	now := time.Now()
	state := domain.PlaybackState{
		Action:      session.Playback.Action,
		TimeSeconds: session.Playback.PositionAt(now),
		UpdatedAt:   now,
	}
	return session.Video, &state, nil
}
