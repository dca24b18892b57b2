package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/projvault/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	Category          string `json:"category"`
	Action            string `json:"action"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// RetryAfterが設定されている場合はRetry-Afterヘッダーも付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:              apiErr.Code,
		Message:           apiErr.Message,
		Category:          apiErr.Category,
		Action:            apiErr.Action,
		RetryAfterSeconds: apiErr.RetryAfter,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
