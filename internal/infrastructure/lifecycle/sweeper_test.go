package lifecycle

import (
	"context"
	"testing"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sweeperFixture struct {
	sessions     ports.SessionRepository
	participants ports.ParticipantRepository
	sweeper      *Sweeper
}

func newSweeperFixture(t *testing.T) *sweeperFixture {
	sessionRepo := memory.NewMemorySessionRepository()
	participantRepo := memory.NewMemoryParticipantRepository()
	sweeper := NewSweeper(
		sessionRepo,
		participantRepo,
		services.NewSessionLocks(),
		nil,
		time.Minute,
		2*time.Hour,
		24*time.Hour,
		zaptest.NewLogger(t).Sugar(),
	)
	return &sweeperFixture{sessions: sessionRepo, participants: participantRepo, sweeper: sweeper}
}

func addSession(t *testing.T, f *sweeperFixture, id domain.SessionID, active bool, createdAgo, updatedAgo time.Duration) {
	now := time.Now()
	require.NoError(t, f.sessions.Create(context.Background(), &domain.Session{
		ID:        id,
		Title:     string(id),
		HostID:    "host",
		Active:    active,
		CreatedAt: now.Add(-createdAgo),
		UpdatedAt: now.Add(-updatedAgo),
	}))
}

func addParticipant(t *testing.T, f *sweeperFixture, sessionID domain.SessionID, userID domain.UserID) {
	require.NoError(t, f.participants.Upsert(context.Background(), &domain.Participant{
		SessionID: sessionID,
		UserID:    userID,
		Name:      string(userID),
		JoinedAt:  time.Now(),
	}))
}

func TestSweepDeletesEmptyActiveSession(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addSession(t, f, "empty", true, time.Minute, time.Minute)

	emptyDeleted, staleDeleted, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, emptyDeleted)
	assert.Equal(t, 0, staleDeleted)

	_, err = f.sessions.GetByID(ctx, "empty")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addSession(t, f, "empty", true, time.Minute, time.Minute)

	emptyDeleted, _, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, emptyDeleted)

	// Second run has nothing left to clean.
	emptyDeleted, staleDeleted, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, emptyDeleted)
	assert.Equal(t, 0, staleDeleted)
}

func TestSweepKeepsPopulatedSession(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addSession(t, f, "busy", true, time.Minute, time.Minute)
	addParticipant(t, f, "busy", "u1")

	emptyDeleted, staleDeleted, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, emptyDeleted)
	assert.Equal(t, 0, staleDeleted)

	_, err = f.sessions.GetByID(ctx, "busy")
	assert.NoError(t, err)
}

func TestSweepDeletesStaleInactiveSession(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	// Old enough and stale enough, inactive, empty roster.
	addSession(t, f, "stale", false, 48*time.Hour, 3*time.Hour)

	emptyDeleted, staleDeleted, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, emptyDeleted)
	assert.Equal(t, 1, staleDeleted)

	_, err = f.sessions.GetByID(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSweepKeepsYoungStaleSession(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	// Stale, but created too recently to qualify for the second pass.
	addSession(t, f, "young", false, 3*time.Hour, 3*time.Hour)

	_, staleDeleted, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, staleDeleted)

	_, err = f.sessions.GetByID(ctx, "young")
	assert.NoError(t, err)
}

func TestSweepKeepsRecentlyUpdatedSession(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	// Old, inactive, but updated within the staleness threshold.
	addSession(t, f, "fresh", false, 48*time.Hour, time.Minute)

	_, staleDeleted, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, staleDeleted)

	_, err = f.sessions.GetByID(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSweepKeepsStaleSessionWithRoster(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addSession(t, f, "inhabited", false, 48*time.Hour, 3*time.Hour)
	addParticipant(t, f, "inhabited", "u1")

	_, staleDeleted, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, staleDeleted)
}
