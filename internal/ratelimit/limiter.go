// Package ratelimit implements the per-identity fixed-window limiter that
// guards signup, login and the other abuse-prone auth operations.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/authgate/internal/cache"
	"github.com/utafrali/authgate/internal/metrics"
	apperrors "github.com/utafrali/authgate/pkg/errors"
)

// Operations guarded by the limiter. They form part of the key layout.
const (
	OpSignup = "signup"
	OpResend = "resend"
	OpLogin  = "login"
	OpForgot = "reset"
)

// LimitedMessage is returned to clients once a limit trips.
const LimitedMessage = "Too many attempts. Please try again later."

// Rule is a fixed-window limit.
type Rule struct {
	MaxAttempts int
	Window      time.Duration
}

// Rules holds the rule for every guarded operation.
type Rules struct {
	Signup Rule
	Resend Rule
	Login  Rule
	Forgot Rule
}

// DefaultRules returns the production limits.
func DefaultRules() Rules {
	return Rules{
		Signup: Rule{MaxAttempts: 3, Window: time.Hour},
		Resend: Rule{MaxAttempts: 3, Window: time.Hour},
		Login:  Rule{MaxAttempts: 10, Window: 15 * time.Minute},
		Forgot: Rule{MaxAttempts: 3, Window: time.Hour},
	}
}

// incrScript increments the counter and starts the window on the first hit
// in one round trip, so a counter can never be left without a TTL.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Limiter is a redis-backed fixed-window limiter with a separate lock key.
// Once the counter passes the limit the lock key is set for a full window
// and checked first on every call, so all attempts fail fast until it
// expires even if the counter itself rolls over.
type Limiter struct {
	client    redis.Cmdable
	keys      cache.Keys
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewLimiter creates a limiter. opTimeout bounds each redis call.
func NewLimiter(client redis.Cmdable, keys cache.Keys, opTimeout time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{client: client, keys: keys, opTimeout: opTimeout, logger: logger}
}

// CheckAndConsume records one attempt for identity and returns a
// TOO_MANY_REQUESTS error when the attempt is not allowed. Any redis
// failure denies the attempt: a lockout must never be bypassed because the
// store was slow.
func (l *Limiter) CheckAndConsume(ctx context.Context, op, identity string, rule Rule) error {
	opCtx, cancel := l.withTimeout(ctx)
	defer cancel()

	lockKey := l.keys.RateLimitLock(op, identity)
	locked, err := l.client.Exists(opCtx, lockKey).Result()
	if err != nil {
		return l.deny(ctx, op, "lock check failed", err)
	}
	if locked > 0 {
		return l.deny(ctx, op, "", nil)
	}

	count, err := incrScript.Run(opCtx, l.client, []string{l.keys.RateLimit(op, identity)}, rule.Window.Milliseconds()).Int64()
	if err != nil {
		return l.deny(ctx, op, "counter increment failed", err)
	}

	if count > int64(rule.MaxAttempts) {
		if err := l.client.Set(opCtx, lockKey, 1, rule.Window).Err(); err != nil {
			l.logger.WarnContext(ctx, "failed to set rate limit lock",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
		}
		return l.deny(ctx, op, "", nil)
	}
	return nil
}

func (l *Limiter) deny(ctx context.Context, op, reason string, err error) error {
	metrics.RateLimited(op)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.WarnContext(ctx, "rate limiter unavailable, denying attempt",
			slog.String("op", op),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
	return apperrors.TooManyRequests(LimitedMessage)
}

// Reset clears the counter and lock for identity.
func (l *Limiter) Reset(ctx context.Context, op, identity string) error {
	opCtx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.client.Del(opCtx, l.keys.RateLimit(op, identity), l.keys.RateLimitLock(op, identity)).Err()
}

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.opTimeout)
}
