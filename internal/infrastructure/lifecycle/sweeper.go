package lifecycle

import (
	"context"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// Sweeper reclaims abandoned sessions on a fixed interval. Each run makes two
// passes: active sessions with an empty roster are deleted first, then any
// session old enough and stale enough with an empty roster. A failed run is
// logged and the next interval retries.
type Sweeper struct {
	sessions     ports.SessionRepository
	participants ports.ParticipantRepository
	locks        *services.SessionLocks
	metrics      *monitoring.PrometheusCollector

	interval   time.Duration
	staleAfter time.Duration
	minAge     time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *zap.SugaredLogger
}

func NewSweeper(
	sessions ports.SessionRepository,
	participants ports.ParticipantRepository,
	locks *services.SessionLocks,
	metrics *monitoring.PrometheusCollector,
	interval, staleAfter, minAge time.Duration,
	logger *zap.SugaredLogger,
) *Sweeper {
	return &Sweeper{
		sessions:     sessions,
		participants: participants,
		locks:        locks,
		metrics:      metrics,
		interval:     interval,
		staleAfter:   staleAfter,
		minAge:       minAge,
		stopChan:     make(chan struct{}),
		logger:       logger,
	}
}

// Start runs the sweep loop until Stop is called or ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Infow("session sweeper started",
			"interval", s.interval,
			"stale_after", s.staleAfter,
			"min_age", s.minAge,
		)

		for {
			select {
			case <-ticker.C:
				empty, stale, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Errorw("session sweep failed", "error", err)
					continue
				}
				if empty > 0 || stale > 0 {
					s.logger.Infow("session sweep completed",
						"empty_deleted", empty,
						"stale_deleted", stale,
					)
				}
			case <-ctx.Done():
				s.logger.Info("session sweeper stopped: context canceled")
				return
			case <-s.stopChan:
				s.logger.Info("session sweeper stopped")
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Sweep performs one cleanup run and reports per-pass deletion counts.
// Running it with nothing to clean is a no-op.
func (s *Sweeper) Sweep(ctx context.Context) (emptyDeleted, staleDeleted int, err error) {
	emptyDeleted, err = s.sweepEmptyActive(ctx)
	if err != nil {
		return emptyDeleted, 0, err
	}

	staleDeleted, err = s.sweepStale(ctx)
	return emptyDeleted, staleDeleted, err
}

// sweepEmptyActive deletes every active session whose roster is empty.
func (s *Sweeper) sweepEmptyActive(ctx context.Context) (int, error) {
	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, session := range active {
		count, err := s.participants.CountBySession(ctx, session.ID)
		if err != nil {
			s.logger.Warnw("failed to count roster during sweep", "session_id", session.ID, "error", err)
			continue
		}
		if count > 0 {
			continue
		}

		if err := s.deleteSession(ctx, session.ID); err != nil {
			s.logger.Warnw("failed to delete empty session", "session_id", session.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 && s.metrics != nil {
		s.metrics.RecordSweeperDeletion("empty", deleted)
	}
	return deleted, nil
}

// sweepStale deletes every session, active or not, that has not been updated
// within staleAfter, was created at least minAge ago, and has an empty
// roster.
func (s *Sweeper) sweepStale(ctx context.Context) (int, error) {
	all, err := s.sessions.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	deleted := 0
	for _, session := range all {
		if now.Sub(session.UpdatedAt) <= s.staleAfter {
			continue
		}
		if now.Sub(session.CreatedAt) <= s.minAge {
			continue
		}

		count, err := s.participants.CountBySession(ctx, session.ID)
		if err != nil {
			s.logger.Warnw("failed to count roster during sweep", "session_id", session.ID, "error", err)
			continue
		}
		if count > 0 {
			continue
		}

		if err := s.deleteSession(ctx, session.ID); err != nil {
			s.logger.Warnw("failed to delete stale session", "session_id", session.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 && s.metrics != nil {
		s.metrics.RecordSweeperDeletion("stale", deleted)
	}
	return deleted, nil
}

func (s *Sweeper) deleteSession(ctx context.Context, id domain.SessionID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.participants.RemoveBySession(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.locks.Forget(id)
	return nil
}
