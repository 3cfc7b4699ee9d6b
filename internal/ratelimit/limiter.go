package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/metra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// tokenBucketScript refills and takes one token atomically. Keys carry a
// TTL so idle buckets expire on their own.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(bucket[1])
local ts = tonumber(bucket[2])
if tokens == nil then
  tokens = burst
  ts = now
end

local elapsed = math.max(0, now - ts)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, math.ceil(burst / math.max(rate, 0.001)) * 2)
return allowed
`)

// Limiter is a redis-backed token bucket. A nil Limiter allows everything,
// which is how a deployment without redis runs.
type Limiter struct {
	client *redis.Client
	rate   float64
	burst  int
	log    *zap.Logger
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Logger    *zap.Logger
}

// New returns nil when rate limiting is disabled.
func New(p Params) *Limiter {
	if !p.Config.RateLimit.Enabled || p.Config.RateLimit.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Config.RateLimit.RedisAddr,
		Password: p.Config.RateLimit.RedisPassword,
		DB:       p.Config.RateLimit.RedisDB,
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return &Limiter{
		client: client,
		rate:   p.Config.RateLimit.BulkStaffRate,
		burst:  p.Config.RateLimit.BulkStaffBurst,
		log:    p.Logger.Named("ratelimit"),
	}
}

// Allow takes one token from the caller's bucket. Redis failure fails
// open: a throttling outage must not block field submissions.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}

	now := float64(time.Now().UnixMilli()) / 1000.0
	allowed, err := tokenBucketScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("ratelimit:%s", key)},
		l.rate, l.burst, now,
	).Int()
	if err != nil {
		l.log.Warn("rate limit check failed, allowing", zap.Error(err))
		return true
	}
	return allowed == 1
}
