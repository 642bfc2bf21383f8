package application

import (
	"context"
	"math/rand"
	"time"
)

// BackoffConfig bounds exponential backoff after rate limiting
type BackoffConfig struct {
	BaseDelay time.Duration // e.g. 1s
	MaxDelay  time.Duration // e.g. 60s
}

// DefaultBackoff returns the backoff used when none is configured
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// BackoffDelay computes exponential backoff with full jitter.
// attempt is 1-based (1 => up to BaseDelay).
func BackoffDelay(attempt int, cfg BackoffConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}

	delay := cfg.BaseDelay
	for i := 1; i < attempt && delay < cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	return time.Duration(rand.Int63n(int64(delay) + 1))
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
