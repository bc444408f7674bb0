// Package ratelimit implements the accept-time rate limiter keyed by
// remote address, backed by ulule/limiter/v3 with a Redis store when
// available and an in-memory store otherwise. This mirrors the teacher's
// internal/v1/ratelimit package, stripped to the single WS-connect limit
// the server's accept loop needs (wsrelay.RateLimiter.Allow).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay/internal/logging"
)

// limiterCheckTimeout bounds a single store round-trip so a slow Redis
// store cannot stall the accept path.
const limiterCheckTimeout = 2 * time.Second

// Limiter enforces a formatted rate (e.g. "100-M") per remote address.
// It implements wsrelay.RateLimiter.
type Limiter struct {
	inner *limiter.Limiter
}

// NewLimiter builds a Limiter backed by redisClient, or an in-memory
// store if redisClient is nil. formattedRate follows ulule/limiter's
// "<count>-<period>" syntax, e.g. "100-M" for 100 per minute.
func NewLimiter(formattedRate string, redisClient *redis.Client) (*Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("wsrelay/ratelimit: invalid rate %q: %w", formattedRate, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "wsrelay:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("wsrelay/ratelimit: redis store: %w", err)
		}
		logging.Info("rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Warn("rate limiter using in-memory store; limits do not share state across instances")
	}

	return &Limiter{inner: limiter.New(store, rate)}, nil
}

// Allow reports whether remoteAddr may proceed, incrementing its usage
// count as a side effect. A store failure fails open, since the limiter
// protects capacity, not correctness.
func (l *Limiter) Allow(remoteAddr string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), limiterCheckTimeout)
	defer cancel()

	result, err := l.inner.Get(ctx, remoteAddr)
	if err != nil {
		logging.Error("rate limiter store failed, failing open", zap.String("remote_addr", remoteAddr), zap.Error(err))
		return true
	}

	return !result.Reached
}
