// Package ratelimit はキー単位の固定ウィンドウ方式レート制限を提供する。
package ratelimit

import (
	"context"
	"time"
)

// Decision はレート制限の判定結果を表す。
type Decision struct {
	Allowed bool
	// Remaining は現在のウィンドウ内で残っている許可回数。
	Remaining int
	// RetryAfter は拒否時にウィンドウがリセットされるまでの時間。許可時は0。
	RetryAfter time.Duration
}

// Limiter はレート制限のインターフェース。
// 拒否した試行はカウンタを進めない。
type Limiter interface {
	Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) (Decision, error)
}
