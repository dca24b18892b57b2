package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/projvault/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, admission_year, student_sequence, created_at, updated_at`

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = $1`, email)
}

// CreateIfAbsent はプロフィールを作成する。
// 並行する初回ログインで一意制約が競合した場合は、先に作成された行を返す。
func (r *PostgresProfileRepo) CreateIfAbsent(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email) DO NOTHING`,
		profile.ID, profile.Email, profile.AdmissionYear, profile.StudentSequence,
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return profile, nil
	}

	existing, err := r.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("profile vanished after conflict: %s", profile.Email)
	}
	return existing, nil
}

func (r *PostgresProfileRepo) findOne(ctx context.Context, query string, arg string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Email, &p.AdmissionYear, &p.StudentSequence, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
