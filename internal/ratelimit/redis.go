package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript はカウンタが上限未満のときのみINCRし、初回にPEXPIREを設定する。
// 戻り値: {allowed(0|1), remaining, pttl_ms}
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])

	local count = tonumber(redis.call('GET', key) or '0')
	if count >= limit then
		local ttl = redis.call('PTTL', key)
		if ttl < 0 then
			redis.call('PEXPIRE', key, window_ms)
			ttl = window_ms
		end
		return {0, 0, ttl}
	end

	count = redis.call('INCR', key)
	if count == 1 then
		redis.call('PEXPIRE', key, window_ms)
	end
	return {1, limit - count, 0}
`)

// RedisLimiter はRedisのキーTTLでウィンドウを表現するLimiter。
// 複数インスタンス間でカウンタを共有する。
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

// NewRedisLimiter はRedisLimiterを生成する。prefixが空の場合は "projvault:ratelimit:" を使う。
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "projvault:ratelimit:"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Allow はLuaスクリプトで判定とカウンタ更新を原子的に行う。
func (l *RedisLimiter) Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key},
		maxAttempts,
		window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit result: %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Remaining: int(res[1])}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(res[2]) * time.Millisecond}, nil
}

// compile-time interface check
var _ Limiter = (*RedisLimiter)(nil)
