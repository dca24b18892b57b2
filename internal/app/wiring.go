package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/projvault/internal/config"
	"github.com/hitoshi/projvault/internal/notify"
	"github.com/hitoshi/projvault/internal/ratelimit"
	"github.com/hitoshi/projvault/internal/repository"
	"github.com/hitoshi/projvault/internal/security"
	"github.com/hitoshi/projvault/internal/session"
	"github.com/hitoshi/projvault/internal/worker/janitor"
)

const (
	redisDialTimeout = 2 * time.Second
	redisIOTimeout   = time.Second

	rateLimitKeyPrefix = "projvault:ratelimit:"
	sessionKeyPrefix   = "projvault:session:"

	limiterSweepInterval = time.Minute
)

// newRedisClient はRedisクライアントを生成し、疎通を確認する。
func newRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// sessionBackend は選択したセッション保存先と、ジャニターが掃除すべき対象。
// Redisはキーの TTL で失効するため sweeper を持たない。
type sessionBackend struct {
	store   session.Store
	sweeper janitor.SessionSweeper
}

// buildSessionBackend はSESSION_BACKENDに応じたセッション保存先を構築する。
func buildSessionBackend(cfg *config.Config, db *sql.DB, rdb *redis.Client) (sessionBackend, error) {
	switch cfg.SessionBackend {
	case config.BackendPostgres:
		repo := repository.NewPostgresSessionRepo(db)
		return sessionBackend{store: repo, sweeper: repo}, nil
	case config.BackendMemory:
		store := session.NewMemoryStore(time.Now)
		return sessionBackend{store: store, sweeper: store}, nil
	case config.BackendRedis:
		if rdb == nil {
			return sessionBackend{}, fmt.Errorf("redis session backend requires a redis client")
		}
		return sessionBackend{store: session.NewRedisStore(rdb, sessionKeyPrefix)}, nil
	default:
		return sessionBackend{}, fmt.Errorf("unknown session backend: %q", cfg.SessionBackend)
	}
}

// buildLimiter はRATE_LIMIT_BACKENDに応じた送信回数制限を構築する。
// 返すstop関数はシャットダウン時に呼ぶ。
func buildLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.Limiter, func(), error) {
	switch cfg.RateLimitBackend {
	case config.BackendMemory:
		l := ratelimit.NewMemoryLimiter()
		l.StartSweeper(limiterSweepInterval)
		return l, l.Stop, nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis rate limit backend requires a redis client")
		}
		return ratelimit.NewRedisLimiter(rdb, rateLimitKeyPrefix), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend: %q", cfg.RateLimitBackend)
	}
}

// buildNotifier はMAIL_BACKENDに応じたパスコード配信手段を構築する。
func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	switch cfg.MailBackend {
	case config.BackendLog:
		return notify.NewLogNotifier(logger), nil
	case config.BackendHTTP:
		n, err := notify.NewMailAPINotifier(notify.MailAPIConfig{
			Endpoint:    cfg.MailAPIURL,
			APIKey:      cfg.MailAPIKey,
			From:        cfg.MailFrom,
			FooterHTML:  cfg.MailFooterHTML,
			Timeout:     cfg.MailTimeout,
			MaxAttempts: cfg.MailMaxAttempts,
			SendBudget:  cfg.MailSendBudget,
		}, security.NewOutboundGuard(), security.NewMailSanitizer())
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown mail backend: %q", cfg.MailBackend)
	}
}
