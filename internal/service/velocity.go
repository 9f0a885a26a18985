package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/cache"
)

// Swipe velocity bounds per window.
const (
	VelocityWindow    = 60 * time.Second
	VelocitySoftLimit = 20
	VelocityHardLimit = 30
)

// Verdict is the velocity limiter's decision for one swipe.
type Verdict struct {
	Count int64
	// Penalize asks the swipe transaction to decay trust and log abuse.
	Penalize bool
	// Degraded means the counter was unreachable and no limit was applied.
	Degraded bool
}

// VelocityLimiter counts swipes per user in a fixed 60-second window that
// opens on the first swipe.
type VelocityLimiter struct {
	cache  cache.Cache
	logger *slog.Logger
}

func NewVelocityLimiter(c cache.Cache, logger *slog.Logger) *VelocityLimiter {
	return &VelocityLimiter{cache: c, logger: logger}
}

// Check counts one swipe. Above the hard limit it returns a RATE_LIMITED
// error. If the cache is down the swipe is let through unpenalized.
func (v *VelocityLimiter) Check(ctx context.Context, userID string) (Verdict, error) {
	n, err := v.cache.IncrWindow(ctx, cache.SwipeRateKey(userID), VelocityWindow)
	if err != nil {
		v.logger.Warn("velocity counter unavailable, not limiting",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
		return Verdict{Degraded: true}, nil
	}

	if n > VelocityHardLimit {
		v.logger.Warn("swipe rate limit exceeded", slog.String("userId", userID), slog.Int64("count", n))
		return Verdict{Count: n}, apperror.RateLimited("too many swipes, slow down")
	}
	return Verdict{Count: n, Penalize: n > VelocitySoftLimit}, nil
}
