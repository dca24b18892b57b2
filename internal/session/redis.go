package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/projvault/internal/model"
)

// RedisStore はRedisにセッションを保存するStore。キーのTTLを有効期限として使う。
type RedisStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisStore はRedisStoreを生成する。prefixが空の場合は "projvault:session:" を使う。
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "projvault:session:"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

type redisSession struct {
	ProfileID string    `json:"profile_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Create はセッションをJSONで保存する。期限切れのセッションは保存しない。
func (s *RedisStore) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", session.ExpiresAt)
	}

	data, err := json.Marshal(redisSession{
		ProfileID: session.ProfileID,
		Email:     session.Email,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID はセッションを取得する。
func (s *RedisStore) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if !rs.ExpiresAt.After(s.now()) {
		return nil, nil
	}

	return &model.Session{
		ID:        id,
		ProfileID: rs.ProfileID,
		Email:     rs.Email,
		ExpiresAt: rs.ExpiresAt,
		CreatedAt: rs.CreatedAt,
	}, nil
}

// DeleteByID はセッションを削除する。
func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*RedisStore)(nil)
