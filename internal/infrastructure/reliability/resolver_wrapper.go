package reliability

import (
	"context"
	"errors"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// ResolverWrapper shields the metadata provider behind a circuit breaker so a
// broken upstream fails fast instead of tying up every setVideo call.
type ResolverWrapper struct {
	inner   ports.VideoResolver
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewResolverWrapper(inner ports.VideoResolver, cfg circuitbreaker.Config, logger *zap.SugaredLogger) *ResolverWrapper {
	w := &ResolverWrapper{
		inner:   inner,
		breaker: circuitbreaker.New(cfg),
		logger:  logger,
	}
	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("metadata resolver circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

func (w *ResolverWrapper) Resolve(ctx context.Context, provider, videoID string) (*domain.Video, error) {
	var video *domain.Video
	err := w.breaker.Execute(func() error {
		var innerErr error
		video, innerErr = w.inner.Resolve(ctx, provider, videoID)
		// Client-side errors say nothing about upstream health.
		if errors.Is(innerErr, domain.ErrUnknownProvider) {
			return nil
		}
		return innerErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, fmt.Errorf("%w: metadata provider unavailable", domain.ErrVideoNotResolved)
		}
		return nil, err
	}
	if video == nil {
		return nil, domain.ErrUnknownProvider
	}
	return video, nil
}

var _ ports.VideoResolver = (*ResolverWrapper)(nil)
