package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisSessionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{
		client: client,
		prefix: "watchparty:session:",
	}
}

func (r *RedisSessionRepository) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisSessionRepository) activeSetKey() string {
	return r.prefix + "active"
}

func (r *RedisSessionRepository) allSetKey() string {
	return r.prefix + "all"
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}

	if err := r.client.SAdd(ctx, r.allSetKey(), string(session.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add session to all set: %w", err)
	}
	if session.Active {
		if err := r.client.SAdd(ctx, r.activeSetKey(), string(session.ID)).Err(); err != nil {
			return fmt.Errorf("failed to add session to active set: %w", err)
		}
	}

	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisSessionRepository) Update(ctx context.Context, session *domain.Session) error {
	if _, err := r.GetByID(ctx, session.ID); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}

	if session.Active {
		if err := r.client.SAdd(ctx, r.activeSetKey(), string(session.ID)).Err(); err != nil {
			return fmt.Errorf("failed to add session to active set: %w", err)
		}
	} else {
		if err := r.client.SRem(ctx, r.activeSetKey(), string(session.ID)).Err(); err != nil {
			return fmt.Errorf("failed to remove session from active set: %w", err)
		}
	}

	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	if err := r.client.SRem(ctx, r.activeSetKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove session from active set: %w", err)
	}
	if err := r.client.SRem(ctx, r.allSetKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove session from all set: %w", err)
	}
	if err := r.client.Del(ctx, r.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) ListActive(ctx context.Context) ([]*domain.Session, error) {
	return r.listSet(ctx, r.activeSetKey(), true)
}

func (r *RedisSessionRepository) ListAll(ctx context.Context) ([]*domain.Session, error) {
	return r.listSet(ctx, r.allSetKey(), false)
}

func (r *RedisSessionRepository) listSet(ctx context.Context, setKey string, activeOnly bool) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session set from Redis: %w", err)
	}

	var sessions []*domain.Session
	for _, id := range ids {
		session, err := r.GetByID(ctx, domain.SessionID(id))
		if err != nil {
			// Skip sessions that no longer exist
			continue
		}
		if activeOnly && !session.Active {
			continue
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
