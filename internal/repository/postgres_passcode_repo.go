package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/projvault/internal/model"
)

// PostgresPasscodeRepo はPostgreSQLを使用したパスコードリポジトリ。
type PostgresPasscodeRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresPasscodeRepo はPostgresPasscodeRepoを生成する。
func NewPostgresPasscodeRepo(db *sql.DB, opts ...Option) *PostgresPasscodeRepo {
	o := buildOptions(opts)
	return &PostgresPasscodeRepo{db: db, now: o.now}
}

// Create はパスコードを保存する。
func (r *PostgresPasscodeRepo) Create(ctx context.Context, email, code string, expiresAt time.Time) (*model.Passcode, error) {
	p := &model.Passcode{
		ID:        uuid.New().String(),
		Email:     email,
		Code:      code,
		CreatedAt: r.now(),
		ExpiresAt: expiresAt,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO passcodes (id, email, code, created_at, expires_at, consumed)
		 VALUES ($1, $2, $3, $4, $5, FALSE)`,
		p.ID, p.Email, p.Code, p.CreatedAt, p.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create passcode: %w", err)
	}
	return p, nil
}

// FindRecent は since 以降に作成されたパスコードを新しい順に返す。
func (r *PostgresPasscodeRepo) FindRecent(ctx context.Context, email string, since time.Time) ([]*model.Passcode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, code, created_at, expires_at, consumed
		 FROM passcodes
		 WHERE email = $1 AND created_at >= $2
		 ORDER BY created_at DESC`,
		email, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent passcodes: %w", err)
	}
	defer rows.Close()

	var passcodes []*model.Passcode
	for rows.Next() {
		p := &model.Passcode{}
		if err := rows.Scan(&p.ID, &p.Email, &p.Code, &p.CreatedAt, &p.ExpiresAt, &p.Consumed); err != nil {
			return nil, fmt.Errorf("failed to scan passcode: %w", err)
		}
		passcodes = append(passcodes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate passcodes: %w", err)
	}
	return passcodes, nil
}

// VerifyAndConsume は一致するパスコードを使用済みにする。
// サブクエリの FOR UPDATE SKIP LOCKED と外側の consumed = FALSE 条件により、
// 同一コードに対する並行呼び出しのうち成功するのは高々1件となる。
func (r *PostgresPasscodeRepo) VerifyAndConsume(ctx context.Context, email, code string) (*model.Passcode, error) {
	p := &model.Passcode{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE passcodes SET consumed = TRUE
		 WHERE id = (
		     SELECT id FROM passcodes
		     WHERE email = $1 AND code = $2 AND consumed = FALSE AND expires_at > $3
		     ORDER BY created_at DESC
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 ) AND consumed = FALSE
		 RETURNING id, email, code, created_at, expires_at, consumed`,
		email, code, r.now(),
	).Scan(&p.ID, &p.Email, &p.Code, &p.CreatedAt, &p.ExpiresAt, &p.Consumed)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume passcode: %w", err)
	}
	return p, nil
}

// PurgeExpiredOrConsumed は使用済みまたは期限切れのパスコードを削除する。
func (r *PostgresPasscodeRepo) PurgeExpiredOrConsumed(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM passcodes WHERE consumed = TRUE OR expires_at <= $1`,
		r.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge passcodes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ PasscodeRepository = (*PostgresPasscodeRepo)(nil)
