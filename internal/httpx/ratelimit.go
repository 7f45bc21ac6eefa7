package httpx

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig sizes the token bucket: Capacity tokens refilled evenly
// over Period.
type RateLimiterConfig struct {
	Capacity int
	Period   time.Duration
}

// DefaultRateLimiterConfig matches the upstream's published limit of 100
// requests per minute.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{Capacity: 100, Period: time.Minute}
}

// RateLimiter is a token bucket gating outbound requests. One token is
// spent per HTTP attempt, retries included.
type RateLimiter struct {
	lim *rate.Limiter
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Capacity <= 0 {
		cfg = DefaultRateLimiterConfig()
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	refill := rate.Limit(float64(cfg.Capacity) / cfg.Period.Seconds())
	return &RateLimiter{lim: rate.NewLimiter(refill, cfg.Capacity)}
}

// TryAcquire attempts to take one token without blocking. When denied it
// returns the wait after which a retry would succeed.
func (r *RateLimiter) TryAcquire() (bool, time.Duration) {
	res := r.lim.Reserve()
	if !res.OK() {
		return false, time.Second
	}
	delay := res.Delay()
	if delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// Acquire blocks until a token is available or ctx is done.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.lim.Wait(ctx)
}
