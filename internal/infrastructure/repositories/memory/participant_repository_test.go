package memory

import (
	"context"
	"testing"
	"time"

	"watchparty/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertIsIdempotentPerUser(t *testing.T) {
	repo := NewMemoryParticipantRepository()
	ctx := context.Background()

	first := &domain.Participant{SessionID: "s1", UserID: "u1", Name: "Ann", JoinedAt: time.Now()}
	require.NoError(t, repo.Upsert(ctx, first))

	refreshed := &domain.Participant{SessionID: "s1", UserID: "u1", Name: "Ann", JoinedAt: time.Now().Add(time.Second)}
	require.NoError(t, repo.Upsert(ctx, refreshed))

	count, err := repo.CountBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListBySessionOrdersByJoinTime(t *testing.T) {
	repo := NewMemoryParticipantRepository()
	ctx := context.Background()
	base := time.Now()

	for _, p := range []*domain.Participant{
		{SessionID: "s1", UserID: "third", JoinedAt: base.Add(2 * time.Second)},
		{SessionID: "s1", UserID: "first", JoinedAt: base},
		{SessionID: "s1", UserID: "second", JoinedAt: base.Add(time.Second)},
	} {
		require.NoError(t, repo.Upsert(ctx, p))
	}

	roster, err := repo.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, domain.UserID("first"), roster[0].UserID)
	assert.Equal(t, domain.UserID("second"), roster[1].UserID)
	assert.Equal(t, domain.UserID("third"), roster[2].UserID)
}

func TestRemoveAndRemoveBySession(t *testing.T) {
	repo := NewMemoryParticipantRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.Participant{SessionID: "s1", UserID: "u1", JoinedAt: time.Now()}))
	require.NoError(t, repo.Upsert(ctx, &domain.Participant{SessionID: "s1", UserID: "u2", JoinedAt: time.Now()}))

	require.NoError(t, repo.Remove(ctx, "s1", "u1"))
	count, err := repo.CountBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Removing an absent user is a no-op.
	require.NoError(t, repo.Remove(ctx, "s1", "u1"))

	require.NoError(t, repo.RemoveBySession(ctx, "s1"))
	count, err = repo.CountBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListBySessionReturnsCopies(t *testing.T) {
	repo := NewMemoryParticipantRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.Participant{SessionID: "s1", UserID: "u1", Name: "Ann", JoinedAt: time.Now()}))

	roster, err := repo.ListBySession(ctx, "s1")
	require.NoError(t, err)
	roster[0].Name = "mutated"

	roster, err = repo.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", roster[0].Name)
}
