package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/retry"

	"go.uber.org/zap"
)

// oembedResponse is the subset of the oEmbed document we care about.
type oembedResponse struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// HTTPResolver resolves video title and duration through provider oEmbed
// endpoints. Provider names map to URL templates with one %s placeholder for
// the video id.
type HTTPResolver struct {
	client    *http.Client
	providers map[string]string
	retryCfg  retry.Config
	logger    *zap.SugaredLogger
}

func NewHTTPResolver(providers map[string]string, requestTimeout time.Duration, logger *zap.SugaredLogger) *HTTPResolver {
	return &HTTPResolver{
		client:    &http.Client{Timeout: requestTimeout},
		providers: providers,
		retryCfg:  retry.DefaultConfig(),
		logger:    logger,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, provider, videoID string) (*domain.Video, error) {
	template, ok := r.providers[provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	if videoID == "" {
		return nil, domain.ErrVideoNotResolved
	}

	url := fmt.Sprintf(template, videoID)

	resp, err := retry.DoWithResult(ctx, r.retryCfg, func() (*oembedResponse, error) {
		return r.fetch(ctx, url)
	})
	if err != nil {
		r.logger.Warnw("video metadata lookup failed",
			"provider", provider,
			"video_id", videoID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrVideoNotResolved, provider, videoID)
	}

	return &domain.Video{
		Provider:        provider,
		ID:              videoID,
		Title:           resp.Title,
		DurationSeconds: int(resp.Duration),
	}, nil
}

func (r *HTTPResolver) fetch(ctx context.Context, url string) (*oembedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata endpoint returned status %d", resp.StatusCode)
	}

	var doc oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode oEmbed response: %w", err)
	}
	return &doc, nil
}

// compile-time interface check
var _ ports.VideoResolver = (*HTTPResolver)(nil)
