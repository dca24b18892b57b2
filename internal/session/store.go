// Package session はセッションハンドルの発行と保存先の抽象化を提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/hitoshi/projvault/internal/model"
)

// Store はセッションの保存先インターフェース。
// repository.PostgresSessionRepo、MemoryStore、RedisStore が実装する。
type Store interface {
	Create(ctx context.Context, session *model.Session) error
	// FindByID は有効期限内のセッションを返す。存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID はセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// NewID は暗号的に安全なセッションIDを生成する。32バイトの乱数を16進で表現する。
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
