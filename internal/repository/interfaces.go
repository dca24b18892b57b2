// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/projvault/internal/model"
)

// PasscodeRepository はワンタイムパスコードの永続化インターフェース。
type PasscodeRepository interface {
	// Create はパスコードを新規行として保存する。同一メールの既存行は変更しない。
	Create(ctx context.Context, email, code string, expiresAt time.Time) (*model.Passcode, error)

	// FindRecent は since 以降に作成された指定メールのパスコードを作成日時の降順で返す。
	FindRecent(ctx context.Context, email string, since time.Time) ([]*model.Passcode, error)

	// VerifyAndConsume は未使用かつ有効期限内で一致する最新のパスコードを
	// 単一ステートメントで使用済みにして返す。一致しない場合はnilを返す。
	VerifyAndConsume(ctx context.Context, email, code string) (*model.Passcode, error)

	// PurgeExpiredOrConsumed は使用済みまたは期限切れのパスコードを削除し、削除件数を返す。
	PurgeExpiredOrConsumed(ctx context.Context) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByEmail はメールアドレスでプロフィールを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)

	// CreateIfAbsent はプロフィールを作成する。
	// 同一メールのプロフィールが既に存在する場合は既存行を返す。
	CreateIfAbsent(ctx context.Context, profile *model.Profile) (*model.Profile, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
