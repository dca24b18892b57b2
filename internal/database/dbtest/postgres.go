//go:build integration

// Package dbtest はtestcontainersでPostgreSQLを起動する統合テスト用ヘルパーを提供する。
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitoshi/projvault/internal/database"
)

// Start はPostgreSQLコンテナを起動し、接続URLを返す。
// コンテナはテスト終了時に破棄される。
func Start(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("projvault_test"),
		postgres.WithUsername("projvault"),
		postgres.WithPassword("projvault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return url
}

// StartMigrated はコンテナを起動してマイグレーションを適用し、接続済みのDBを返す。
func StartMigrated(t *testing.T) *sql.DB {
	t.Helper()

	url := Start(t)
	if _, err := database.MigrateUp(url); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, err := database.Open(url)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	return db
}
