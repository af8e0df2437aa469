// Package ratelimit caps requests per client address with fixed-window
// counters in Redis: INCR, and EXPIRE on the first hit of a window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/httpx"
)

const keyPrefix = "rl:"

var ErrRedisUnavailable = errors.New("redis unavailable")

// Rule is one endpoint cap.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

func PerMinute(name string, n int) Rule { return Rule{Name: name, Limit: n, Window: time.Minute} }
func PerHour(name string, n int) Rule   { return Rule{Name: name, Limit: n, Window: time.Hour} }

// Config is read from REDIS_URL. An empty URL disables the caps.
type Config struct {
	RedisURL   string
	TrustProxy bool
}

func ConfigFromEnv() Config {
	trust, _ := strconv.ParseBool(os.Getenv("TRUST_PROXY_HEADERS"))
	return Config{RedisURL: os.Getenv("REDIS_URL"), TrustProxy: trust}
}

// NewClient parses cfg.RedisURL. It returns nil when no URL is configured.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Limiter enforces Rules. A nil Limiter or one without a client lets
// every request through.
type Limiter struct {
	redis      redis.UniversalClient
	logger     *zap.SugaredLogger
	trustProxy bool
}

func New(client redis.UniversalClient, logger *zap.SugaredLogger, trustProxy bool) *Limiter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Limiter{redis: client, logger: logger, trustProxy: trustProxy}
}

// Allow counts one hit for key under rule. When the cap is exceeded it
// returns apperr.ErrTooManyRequests and the time left in the window.
func (l *Limiter) Allow(ctx context.Context, rule Rule, key string) (time.Duration, error) {
	k := keyPrefix + rule.Name + ":" + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, rule.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(rule.Limit) {
		ttl, err := l.redis.TTL(ctx, k).Result()
		if err != nil || ttl < 0 {
			ttl = rule.Window
		}
		return ttl, apperr.ErrTooManyRequests
	}
	return 0, nil
}

// Middleware applies rule keyed by client address. Redis failures are
// logged and the request is let through.
func (l *Limiter) Middleware(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil || l.redis == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httpx.ClientIP(r, l.trustProxy)
			retry, err := l.Allow(r.Context(), rule, ip)
			switch {
			case errors.Is(err, apperr.ErrTooManyRequests):
				l.logger.Warnw("request cap exceeded", "rule", rule.Name, "ip", ip)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				httpx.Fail(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			case err != nil:
				l.logger.Warnw("rate limiter unavailable, allowing request", "rule", rule.Name, "err", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}
