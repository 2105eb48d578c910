package domain

import (
	"context"
	"time"
)

// RateLimiter bounds request rates per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether a request under key is permitted, counting it
	// when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
