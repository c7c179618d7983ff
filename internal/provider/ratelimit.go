package provider

import (
	"context"
	"fmt"
	"io"
	"time"

	"plantbot/internal/domain"

	"golang.org/x/time/rate"
)

// rateLimited throttles Describe calls of the wrapped provider.
type rateLimited struct {
	domain.VisionProvider
	limiter *rate.Limiter
}

// WithRateLimit spaces calls to at most perMinute per minute. Callers over
// the limit wait; they are not rejected. perMinute <= 0 returns p unchanged.
func WithRateLimit(p domain.VisionProvider, perMinute int) domain.VisionProvider {
	if perMinute <= 0 {
		return p
	}
	return &rateLimited{
		VisionProvider: p,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *rateLimited) Describe(ctx context.Context, req domain.VisionRequest) (*domain.VisionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.VisionProvider.Describe(ctx, req)
}

// Close closes the wrapped provider if it holds resources.
func (r *rateLimited) Close() error {
	if c, ok := r.VisionProvider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
