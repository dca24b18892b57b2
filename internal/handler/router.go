package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/projvault/internal/metrics"
	"github.com/hitoshi/projvault/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	ClientRateLimiter *middleware.ClientRateLimiter
	TrustProxyHeaders bool
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 運用
	HealthChecks   []HealthCheck
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//
// /auth/* にはクライアント単位のレート制限を追加し、
// /auth/profile はSession、/auth/logout はCSRFを通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.CookieSecure,
		CookieDomain: deps.AuthConfig.CookieDomain,
	}
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(3*time.Second, deps.HealthChecks...))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		if deps.ClientRateLimiter != nil {
			r.Use(deps.ClientRateLimiter.Middleware())
		}

		r.Post("/send-code", authHandler.SendCode)
		r.Post("/verify-code", authHandler.VerifyCode)
		r.With(middleware.NewSessionMiddleware(deps.SessionFinder)).Get("/profile", authHandler.Profile)
		r.Post("/logout", logoutHandler(authHandler, middleware.NewCSRFMiddleware(csrfConfig)))
	})

	return r
}

// logoutHandler はセッションCookieが無いリクエストをCSRF検証より先にNoActiveSessionとして扱う。
// Cookieがある場合のみCSRFトークンを要求する。
func logoutHandler(h *AuthHandler, csrf func(http.Handler) http.Handler) http.HandlerFunc {
	protected := csrf(http.HandlerFunc(h.Logout))
	return func(w http.ResponseWriter, r *http.Request) {
		if middleware.SessionIDFromRequest(r) == "" {
			h.Logout(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}
}
