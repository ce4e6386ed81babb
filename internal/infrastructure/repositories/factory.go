package repositories

import (
	"context"

	"watchparty/internal/core/ports"
	"watchparty/internal/infrastructure/repositories/memory"
	redisrepo "watchparty/internal/infrastructure/repositories/redis"
	"watchparty/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateSessionRepository creates a session repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSessionRepository(f.redisClient)
	}
	return memory.NewMemorySessionRepository()
}

// CreateParticipantRepository creates a participant repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateParticipantRepository() ports.ParticipantRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisParticipantRepository(f.redisClient)
	}
	return memory.NewMemoryParticipantRepository()
}

// CreateUserRepository creates a user repository (always memory for now)
func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	// Identity issuance is logically external; the in-memory store is its
	// thin stand-in and does not need durability.
	return memory.NewMemoryUserRepository()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
