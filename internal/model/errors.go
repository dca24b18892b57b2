// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, rate_limit, system
	Action   string // ユーザー向け対処方法
	// RetryAfter は再試行までの待ち時間（秒）。0 の場合は出力しない。
	RetryAfter int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFormat           = "FORMAT_ERROR"
	ErrCodeRange            = "RANGE_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeCooldown         = "COOLDOWN"
	ErrCodeInvalidOrExpired = "INVALID_OR_EXPIRED_CODE"
	ErrCodeDeliveryFailed   = "DELIVERY_FAILED"
	ErrCodeStorage          = "STORAGE_ERROR"
	ErrCodeNoActiveSession  = "NO_ACTIVE_SESSION"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeProfileNotFound  = "PROFILE_NOT_FOUND"
	ErrCodeLogoutFailed     = "LOGOUT_FAILED"
	ErrCodeCSRF             = "CSRF_TOKEN_INVALID"
	ErrCodeThrottled        = "TOO_MANY_REQUESTS"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewFormatError は入力形式エラーを生成する。
func NewFormatError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeFormat,
		Message:  message,
		Category: "validation",
		Action:   "Check the value and try again.",
	}
}

// NewRangeError は入学年度・学籍番号が範囲外の場合のエラーを生成する。
func NewRangeError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeRange,
		Message:  message,
		Category: "validation",
		Action:   "Use your own institutional student email address.",
	}
}

// NewRateLimitError は送信回数上限エラーを生成する。
func NewRateLimitError(retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       ErrCodeRateLimited,
		Message:    "Too many code requests. Please try again later.",
		Category:   "rate_limit",
		Action:     "Wait before requesting another code.",
		RetryAfter: ceilSeconds(retryAfter),
	}
}

// NewCooldownError は直近の発行から待機時間が経過していない場合のエラーを生成する。
func NewCooldownError(seconds int) *APIError {
	return &APIError{
		Code:       ErrCodeCooldown,
		Message:    fmt.Sprintf("Please wait %d seconds before requesting a new code", seconds),
		Category:   "rate_limit",
		Action:     "Use the code already sent to your inbox or wait.",
		RetryAfter: seconds,
	}
}

// NewInvalidOrExpiredError はパスコード不一致・期限切れ・使用済みを区別せずに返すエラーを生成する。
func NewInvalidOrExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrExpired,
		Message:  "Invalid or expired code",
		Category: "auth",
		Action:   "Request a new code and try again.",
	}
}

// NewDeliveryError はパスコード送信失敗エラーを生成する。
func NewDeliveryError() *APIError {
	return &APIError{
		Code:     ErrCodeDeliveryFailed,
		Message:  "Failed to send verification code",
		Category: "system",
		Action:   "Please try again in a few minutes.",
	}
}

// NewStorageError は永続化層の失敗を汎用化したエラーを生成する。
func NewStorageError() *APIError {
	return &APIError{
		Code:     ErrCodeStorage,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Please try again in a few minutes.",
	}
}

// NewNoActiveSessionError はログアウト時にセッションが存在しない場合のエラーを生成する。
func NewNoActiveSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoActiveSession,
		Message:  "No active session",
		Category: "auth",
		Action:   "You are already signed out.",
	}
}

// NewLogoutFailedError はセッション破棄に失敗した場合のエラーを生成する。
func NewLogoutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLogoutFailed,
		Message:  "Failed to logout",
		Category: "system",
		Action:   "Please try again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Not authenticated",
		Category: "auth",
		Action:   "Sign in with your student email.",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewThrottledError はクライアント単位のリクエスト流量制限エラーを生成する。
func NewThrottledError(retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       ErrCodeThrottled,
		Message:    "Too many requests. Please try again later.",
		Category:   "rate_limit",
		Action:     "Please wait and retry after the specified time.",
		RetryAfter: ceilSeconds(retryAfter),
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Please try again in a few minutes.",
	}
}

// ceilSeconds は待ち時間を切り上げ秒に変換する。最小値は1。
func ceilSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
