// Package notify はパスコードをメール受信者に届ける配信手段を提供する。
package notify

import (
	"context"
	"time"
)

// Notifier はパスコード配信のインターフェース。
// 配信に失敗した場合はエラーを返し、呼び出し側は発行済みのパスコードを取り消さない。
type Notifier interface {
	SendPasscode(ctx context.Context, email, code string, expiresAt time.Time) error
}
