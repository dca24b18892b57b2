//go:build integration

package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/projvault/internal/database/dbtest"
	"github.com/hitoshi/projvault/internal/model"
	"github.com/hitoshi/projvault/internal/repository"
)

const email = "22-ORG045@students.example.edu"

func TestPasscodeRepo_ConcurrentVerifyConsumesOnce(t *testing.T) {
	db := dbtest.StartMigrated(t)
	repo := repository.NewPostgresPasscodeRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, email, "123456", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	var successes atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			p, err := repo.VerifyAndConsume(ctx, email, "123456")
			if err == nil && p != nil {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestPasscodeRepo_ExpiredCodeRejected(t *testing.T) {
	db := dbtest.StartMigrated(t)
	ctx := context.Background()

	past := time.Now().Add(-11 * time.Minute)
	issuing := repository.NewPostgresPasscodeRepo(db, repository.WithClock(func() time.Time { return past }))
	_, err := issuing.Create(ctx, email, "654321", past.Add(10*time.Minute))
	require.NoError(t, err)

	repo := repository.NewPostgresPasscodeRepo(db)
	p, err := repo.VerifyAndConsume(ctx, email, "654321")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPasscodeRepo_PriorCodesRemainValid(t *testing.T) {
	db := dbtest.StartMigrated(t)
	repo := repository.NewPostgresPasscodeRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, email, "111111", time.Now().Add(10*time.Minute))
	require.NoError(t, err)
	_, err = repo.Create(ctx, email, "222222", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	p, err := repo.VerifyAndConsume(ctx, email, "111111")
	require.NoError(t, err)
	require.NotNil(t, p)

	recent, err := repo.FindRecent(ctx, email, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "222222", recent[0].Code)
}

func TestPasscodeRepo_PurgeLeavesOnlyFreshRows(t *testing.T) {
	db := dbtest.StartMigrated(t)
	ctx := context.Background()
	now := time.Now()

	old := repository.NewPostgresPasscodeRepo(db, repository.WithClock(func() time.Time { return now.Add(-20 * time.Minute) }))
	_, err := old.Create(ctx, "a@x", "100001", now.Add(-10*time.Minute))
	require.NoError(t, err)

	repo := repository.NewPostgresPasscodeRepo(db)
	_, err = repo.Create(ctx, "b@x", "100002", now.Add(10*time.Minute))
	require.NoError(t, err)
	_, err = repo.VerifyAndConsume(ctx, "b@x", "100002")
	require.NoError(t, err)

	fresh, err := repo.Create(ctx, "c@x", "100003", now.Add(10*time.Minute))
	require.NoError(t, err)

	n, err := repo.PurgeExpiredOrConsumed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var ids []string
	rows, err := db.QueryContext(ctx, `SELECT id FROM passcodes`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	assert.Equal(t, []string{fresh.ID}, ids)

	n, err = repo.PurgeExpiredOrConsumed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProfileRepo_CreateIfAbsentConcurrent(t *testing.T) {
	db := dbtest.StartMigrated(t)
	repo := repository.NewPostgresProfileRepo(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now()
			p, err := repo.CreateIfAbsent(ctx, &model.Profile{
				ID:              newUUID(t),
				Email:           email,
				AdmissionYear:   2022,
				StudentSequence: 45,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			if err == nil {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.NotEmpty(t, ids[0])
}

func TestSessionRepo_RoundTrip(t *testing.T) {
	db := dbtest.StartMigrated(t)
	ctx := context.Background()
	profiles := repository.NewPostgresProfileRepo(db)
	sessions := repository.NewPostgresSessionRepo(db)

	now := time.Now()
	prof, err := profiles.CreateIfAbsent(ctx, &model.Profile{
		ID: newUUID(t), Email: email, AdmissionYear: 2022, StudentSequence: 45, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	s := &model.Session{ID: "deadbeef", ProfileID: prof.ID, Email: email, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, sessions.Create(ctx, s))

	got, err := sessions.FindByID(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, prof.ID, got.ProfileID)

	require.NoError(t, sessions.DeleteByID(ctx, "deadbeef"))
	got, err = sessions.FindByID(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, got)
}
