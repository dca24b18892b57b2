// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/projvault/internal/auth"
	"github.com/hitoshi/projvault/internal/middleware"
	"github.com/hitoshi/projvault/internal/model"
)

// maxRequestBodyBytes は認証APIのリクエストボディ上限。
const maxRequestBodyBytes = 4 << 10

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SendCode(ctx context.Context, email string) (*auth.SendResult, error)
	VerifyCode(ctx context.Context, email, code string) (*auth.VerifyResult, error)
	Logout(ctx context.Context, sessionID string) error
	Profile(ctx context.Context, profileID string) (*model.Profile, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
	// DevEchoCode は発行したコードをレスポンスに含めるかどうか。
	// devcode ビルドタグ付きでビルドした場合にのみ有効になる。
	DevEchoCode bool
}

// AuthHandler はパスコード認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.DevEchoCode && !devEchoCompiled {
		slog.Warn("development code echo requested but not compiled in; ignoring")
		config.DevEchoCode = false
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

type sendCodeResponse struct {
	Message         string `json:"message"`
	DevelopmentCode string `json:"developmentCode,omitempty"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type verifyCodeResponse struct {
	Message string          `json:"message"`
	User    profileResponse `json:"user"`
}

type profileResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	AdmissionYear   int    `json:"admissionYear"`
	StudentSequence int    `json:"studentSequence"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// SendCode はパスコードを発行してメールで送信する。
// POST /auth/send-code
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.SendCode(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := sendCodeResponse{Message: "Code sent successfully"}
	if h.config.DevEchoCode {
		resp.DevelopmentCode = result.Code
	}
	writeJSON(w, http.StatusOK, resp)
}

// VerifyCode はパスコードを検証し、成功時にセッションCookieを発行する。
// POST /auth/verify-code
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.Session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, verifyCodeResponse{
		Message: "Authentication successful",
		User:    toProfileResponse(result.Profile),
	})
}

// Profile は現在のログインプロフィールを返す。
// GET /auth/profile（セッションミドルウェア配下）
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profileID, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	prof, err := h.service.Profile(r.Context(), profileID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(prof))
}

// Logout はセッションを破棄し、セッションCookieを削除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.service.Logout(r.Context(), middleware.SessionIDFromRequest(r))
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Code == model.ErrCodeNoActiveSession {
			h.clearSessionCookie(w)
		}
		handleServiceError(w, r, err)
		return
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:              p.ID,
		Email:           p.Email,
		AdmissionYear:   p.AdmissionYear,
		StudentSequence: p.StudentSequence,
	}
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewFormatError("Invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
