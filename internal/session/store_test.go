package session

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/projvault/internal/model"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewID()
		require.NoError(t, err)
		require.Len(t, id, 64)
		_, err = hex.DecodeString(id)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate session id")
		seen[id] = true
	}
}

// storeFactory は各実装に同じ振る舞いテストを適用するためのファクトリ。
type storeFactory func(t *testing.T, now func() time.Time) Store

func memoryFactory(_ *testing.T, now func() time.Time) Store {
	return NewMemoryStore(now)
}

func redisFactory(t *testing.T, now func() time.Time) Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client, "")
	s.now = now
	return s
}

func TestStores(t *testing.T) {
	factories := map[string]storeFactory{
		"memory": memoryFactory,
		"redis":  redisFactory,
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			t.Run("create then find", func(t *testing.T) {
				now := time.Now()
				store := factory(t, func() time.Time { return now })
				ctx := context.Background()

				require.NoError(t, store.Create(ctx, &model.Session{
					ID: "s1", ProfileID: "p1", Email: "a@b",
					ExpiresAt: now.Add(time.Hour), CreatedAt: now,
				}))

				got, err := store.FindByID(ctx, "s1")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, "p1", got.ProfileID)
				assert.Equal(t, "a@b", got.Email)
			})

			t.Run("unknown id", func(t *testing.T) {
				store := factory(t, time.Now)
				got, err := store.FindByID(context.Background(), "missing")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("expired session is hidden", func(t *testing.T) {
				now := time.Now()
				current := now
				store := factory(t, func() time.Time { return current })
				ctx := context.Background()

				require.NoError(t, store.Create(ctx, &model.Session{
					ID: "s1", ProfileID: "p1", ExpiresAt: now.Add(time.Minute), CreatedAt: now,
				}))

				current = now.Add(2 * time.Minute)
				got, err := store.FindByID(ctx, "s1")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				now := time.Now()
				store := factory(t, func() time.Time { return now })
				ctx := context.Background()

				require.NoError(t, store.Create(ctx, &model.Session{
					ID: "s1", ProfileID: "p1", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
				}))
				require.NoError(t, store.DeleteByID(ctx, "s1"))
				require.NoError(t, store.DeleteByID(ctx, "s1"))

				got, err := store.FindByID(ctx, "s1")
				require.NoError(t, err)
				assert.Nil(t, got)
			})
		})
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	_ = store.Create(ctx, &model.Session{ID: "old", ExpiresAt: now.Add(-time.Second)})
	_ = store.Create(ctx, &model.Session{ID: "new", ExpiresAt: now.Add(time.Hour)})

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_SetsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "test:")
	now := time.Now()
	require.NoError(t, store.Create(context.Background(), &model.Session{
		ID: "s1", ProfileID: "p1", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))

	ttl := mr.TTL("test:s1")
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestRedisStore_RejectsExpiredSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "")
	err := store.Create(context.Background(), &model.Session{
		ID: "s1", ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.Error(t, err)
}
