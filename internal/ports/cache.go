package ports

import (
	"context"
	"time"
)

// RateLimitStore implements fixed-window request throttling.
// Allow reports whether the caller identified by key may proceed within the
// window; the store owns counter expiry.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, threshold int, window time.Duration) (bool, error)
}
