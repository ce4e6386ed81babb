package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisParticipantRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisParticipantRepository(client *redis.Client) ports.ParticipantRepository {
	return &RedisParticipantRepository{
		client: client,
		prefix: "watchparty:roster:",
	}
}

func (r *RedisParticipantRepository) rosterKey(sessionID domain.SessionID) string {
	return r.prefix + string(sessionID)
}

func (r *RedisParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	if err := r.client.HSet(ctx, r.rosterKey(p.SessionID), string(p.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to set participant in Redis: %w", err)
	}
	return nil
}

func (r *RedisParticipantRepository) Remove(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	if err := r.client.HDel(ctx, r.rosterKey(sessionID), string(userID)).Err(); err != nil {
		return fmt.Errorf("failed to remove participant from Redis: %w", err)
	}
	return nil
}

func (r *RedisParticipantRepository) RemoveBySession(ctx context.Context, sessionID domain.SessionID) error {
	if err := r.client.Del(ctx, r.rosterKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete roster from Redis: %w", err)
	}
	return nil
}

func (r *RedisParticipantRepository) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	entries, err := r.client.HGetAll(ctx, r.rosterKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get roster from Redis: %w", err)
	}

	list := make([]*domain.Participant, 0, len(entries))
	for _, raw := range entries {
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		list = append(list, &p)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].UserID < list[j].UserID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list, nil
}

func (r *RedisParticipantRepository) CountBySession(ctx context.Context, sessionID domain.SessionID) (int, error) {
	count, err := r.client.HLen(ctx, r.rosterKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count roster in Redis: %w", err)
	}
	return int(count), nil
}
