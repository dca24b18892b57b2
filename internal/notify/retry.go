package notify

import (
	"context"
	"time"
)

// deliveryResult はHTTPステータスコードに基づく配信結果の分類。
type deliveryResult int

const (
	// deliveryOK は配信APIが受理した（2xx）。
	deliveryOK deliveryResult = iota
	// deliveryRetry は再試行で回復しうる（429/5xx）。
	deliveryRetry
	// deliveryPermanent は再試行しても結果が変わらない（それ以外の4xxなど）。
	deliveryPermanent
)

const (
	// defaultMaxAttempts は1通あたりの送信試行回数の既定値。
	defaultMaxAttempts = 3
	// defaultRetryDelay は再試行の初回遅延。
	defaultRetryDelay = 200 * time.Millisecond
	// maxRetryDelay は再試行遅延の上限。
	maxRetryDelay = 2 * time.Second
	// defaultSendBudget は1通あたりの送信全体の上限時間の既定値。
	// HTTPサーバーの書き込みタイムアウトより短くなければならない。
	defaultSendBudget = 10 * time.Second
)

// classifyStatus はHTTPステータスコードを配信結果に分類する。
func classifyStatus(statusCode int) deliveryResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return deliveryOK
	case statusCode == 429:
		return deliveryRetry
	case statusCode >= 500:
		return deliveryRetry
	default:
		return deliveryPermanent
	}
}

// retryDelay は試行回数に基づく指数バックオフ遅延を返す。
// attemptは0始まり。初回はinitial、2倍ずつ増加し、maxRetryDelayで頭打ち。
func retryDelay(initial time.Duration, attempt int) time.Duration {
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// sleepContext はdだけ待つ。ctxが先に終了した場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
