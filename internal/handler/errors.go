package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/projvault/internal/middleware"
	"github.com/hitoshi/projvault/internal/model"
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := asAPIError(err); ok {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

func asAPIError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeFormat, model.ErrCodeRange, model.ErrCodeInvalidOrExpired, model.ErrCodeNoActiveSession:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited, model.ErrCodeCooldown, model.ErrCodeThrottled:
		return http.StatusTooManyRequests
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeCSRF:
		return http.StatusForbidden
	case model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
