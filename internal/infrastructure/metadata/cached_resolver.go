package metadata

import (
	"context"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/cache"
)

// CachedResolver memoizes successful lookups. Metadata for a given video id
// is effectively immutable, so entries only ever expire, never invalidate.
type CachedResolver struct {
	inner ports.VideoResolver
	cache *cache.Cache[*domain.Video]
}

func NewCachedResolver(inner ports.VideoResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: cache.New[*domain.Video](ttl),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, provider, videoID string) (*domain.Video, error) {
	key := provider + ":" + videoID
	if video, ok := r.cache.Get(key); ok {
		copy := *video
		return &copy, nil
	}

	video, err := r.inner.Resolve(ctx, provider, videoID)
	if err != nil {
		return nil, err
	}

	stored := *video
	r.cache.Set(key, &stored)
	return video, nil
}

// Stop terminates the cache janitor.
func (r *CachedResolver) Stop() {
	r.cache.Stop()
}

var _ ports.VideoResolver = (*CachedResolver)(nil)
