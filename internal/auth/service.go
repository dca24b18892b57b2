// Package auth はワンタイムパスコードによるログインフローとセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/projvault/internal/identity"
	"github.com/hitoshi/projvault/internal/metrics"
	"github.com/hitoshi/projvault/internal/model"
	"github.com/hitoshi/projvault/internal/notify"
	"github.com/hitoshi/projvault/internal/passcode"
	"github.com/hitoshi/projvault/internal/ratelimit"
	"github.com/hitoshi/projvault/internal/repository"
	"github.com/hitoshi/projvault/internal/session"
)

// EmailValidator は学内メールアドレスの検証インターフェース。
type EmailValidator interface {
	Validate(email string) (identity.Identity, error)
}

// ProfileResolver はプロフィールの解決・取得インターフェース。
type ProfileResolver interface {
	ResolveOrCreate(ctx context.Context, id identity.Identity) (*model.Profile, error)
	Get(ctx context.Context, profileID string) (*model.Profile, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	PasscodeTTL     time.Duration // パスコードの有効期間
	Cooldown        time.Duration // 同一メールへの再発行を拒否する期間
	SendMaxAttempts int           // 送信ウィンドウあたりの最大送信回数
	SendWindow      time.Duration // 送信回数を数えるウィンドウ
	SessionMaxAge   time.Duration // セッション有効期間
}

// DefaultServiceConfig はデフォルト設定を返す。
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PasscodeTTL:     10 * time.Minute,
		Cooldown:        60 * time.Second,
		SendMaxAttempts: 5,
		SendWindow:      15 * time.Minute,
		SessionMaxAge:   24 * time.Hour,
	}
}

// Deps はServiceの依存コンポーネント。
type Deps struct {
	Policy    EmailValidator
	Limiter   ratelimit.Limiter
	Passcodes repository.PasscodeRepository
	Generator passcode.Generator
	Notifier  notify.Notifier
	Profiles  ProfileResolver
	Sessions  session.Store
	Metrics   metrics.MetricsCollector
	Now       func() time.Time
}

// Service は認証に関するビジネスロジックを提供する。
// 永続化層・配信手段のエラーはここでログに記録し、汎用のAPIErrorに変換して返す。
type Service struct {
	policy    EmailValidator
	limiter   ratelimit.Limiter
	passcodes repository.PasscodeRepository
	generator passcode.Generator
	notifier  notify.Notifier
	profiles  ProfileResolver
	sessions  session.Store
	metrics   metrics.MetricsCollector
	now       func() time.Time
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(deps Deps, config ServiceConfig) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		policy:    deps.Policy,
		limiter:   deps.Limiter,
		passcodes: deps.Passcodes,
		generator: deps.Generator,
		notifier:  deps.Notifier,
		profiles:  deps.Profiles,
		sessions:  deps.Sessions,
		metrics:   deps.Metrics,
		now:       deps.Now,
		config:    config,
	}
}

// SendResult はパスコード発行の結果。
// Code は開発用エコーのためにのみ返し、通常のレスポンスには含めない。
type SendResult struct {
	Code      string
	ExpiresAt time.Time
}

// VerifyResult はパスコード検証成功時の結果。
type VerifyResult struct {
	Session *model.Session
	Profile *model.Profile
}

// RateLimitKey は送信回数制限のキーを返す。
func RateLimitKey(email string) string {
	return "otp:" + email
}

// SendCode はパスコードを発行してメールで送信する。
// ゲートの順序: 形式検証 → 送信回数制限 → 再発行待機 → 発行・保存 → 配信。
func (s *Service) SendCode(ctx context.Context, email string) (*SendResult, error) {
	// 1. メールアドレスを検証
	id, err := s.policy.Validate(email)
	if err != nil {
		s.recordValidationReject(err)
		return nil, err
	}
	log := slog.With(slog.String("email", identity.Mask(id.Email)))

	// 2. 送信回数制限
	decision, err := s.limiter.Allow(ctx, RateLimitKey(id.Email), s.config.SendMaxAttempts, s.config.SendWindow)
	if err != nil {
		log.ErrorContext(ctx, "rate limiter failed", slog.String("error", err.Error()))
		return nil, model.NewStorageError()
	}
	if !decision.Allowed {
		s.metrics.RecordSendRejected(metrics.RejectRateLimit)
		log.WarnContext(ctx, "send-code rate limited", slog.Duration("retry_after", decision.RetryAfter))
		return nil, model.NewRateLimitError(decision.RetryAfter)
	}

	// 3. 直近の発行がある場合は再発行を拒否
	now := s.now()
	recent, err := s.passcodes.FindRecent(ctx, id.Email, now.Add(-s.config.Cooldown))
	if err != nil {
		log.ErrorContext(ctx, "failed to look up recent passcodes", slog.String("error", err.Error()))
		return nil, model.NewStorageError()
	}
	if len(recent) > 0 {
		wait := cooldownRemaining(s.config.Cooldown, now.Sub(recent[0].CreatedAt))
		s.metrics.RecordSendRejected(metrics.RejectCooldown)
		return nil, model.NewCooldownError(wait)
	}

	// 4. 生成して保存
	code, err := s.generator.Generate()
	if err != nil {
		log.ErrorContext(ctx, "failed to generate passcode", slog.String("error", err.Error()))
		return nil, model.NewStorageError()
	}
	p, err := s.passcodes.Create(ctx, id.Email, code, now.Add(s.config.PasscodeTTL))
	if err != nil {
		log.ErrorContext(ctx, "failed to persist passcode", slog.String("error", err.Error()))
		return nil, model.NewStorageError()
	}
	s.metrics.RecordPasscodeIssued()

	// 5. 配信（失敗しても保存済みのパスコードは取り消さない）
	if err := s.notifier.SendPasscode(ctx, id.Email, code, p.ExpiresAt); err != nil {
		s.metrics.RecordDeliveryFailure()
		log.ErrorContext(ctx, "failed to deliver passcode",
			slog.String("passcode_id", p.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDeliveryError()
	}

	log.InfoContext(ctx, "passcode sent", slog.String("passcode_id", p.ID))
	return &SendResult{Code: code, ExpiresAt: p.ExpiresAt}, nil
}

// VerifyCode はパスコードを検証し、成功した場合にセッションを発行する。
// 不一致・期限切れ・使用済みは区別せず同じエラーを返す。
func (s *Service) VerifyCode(ctx context.Context, email, code string) (*VerifyResult, error) {
	// 1. 入力を検証
	if !passcode.IsWellFormed(code) {
		s.metrics.RecordVerify(metrics.VerifyInvalid)
		return nil, model.NewFormatError("Code must be 6 digits")
	}
	id, err := s.policy.Validate(email)
	if err != nil {
		s.metrics.RecordVerify(metrics.VerifyInvalid)
		return nil, err
	}
	log := slog.With(slog.String("email", identity.Mask(id.Email)))

	// 2. パスコードを原子的に消費
	p, err := s.passcodes.VerifyAndConsume(ctx, id.Email, code)
	if err != nil {
		s.metrics.RecordVerify(metrics.VerifyError)
		log.ErrorContext(ctx, "failed to consume passcode", slog.String("error", err.Error()))
		return nil, model.NewStorageError()
	}
	if p == nil {
		s.metrics.RecordVerify(metrics.VerifyInvalid)
		log.InfoContext(ctx, "passcode rejected")
		return nil, model.NewInvalidOrExpiredError()
	}

	// 3. プロフィールを解決（初回は作成）
	prof, err := s.profiles.ResolveOrCreate(ctx, id)
	if err != nil {
		s.metrics.RecordVerify(metrics.VerifyError)
		log.ErrorContext(ctx, "failed to resolve profile", slog.String("error", err.Error()))
		return nil, model.NewStorageError()
	}

	// 4. セッションを発行
	sess, err := s.createSession(ctx, prof)
	if err != nil {
		s.metrics.RecordVerify(metrics.VerifyError)
		log.ErrorContext(ctx, "failed to create session",
			slog.String("profile_id", prof.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError()
	}

	s.metrics.RecordVerify(metrics.VerifySuccess)
	log.InfoContext(ctx, "profile signed in", slog.String("profile_id", prof.ID))
	return &VerifyResult{Session: sess, Profile: prof}, nil
}

// Logout はセッションを破棄する。セッションが存在しない場合はNoActiveSessionエラーを返す。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return model.NewNoActiveSessionError()
	}

	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find session on logout", slog.String("error", err.Error()))
		return model.NewLogoutFailedError()
	}
	if sess == nil {
		return model.NewNoActiveSessionError()
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		slog.ErrorContext(ctx, "failed to delete session",
			slog.String("profile_id", sess.ProfileID),
			slog.String("error", err.Error()),
		)
		return model.NewLogoutFailedError()
	}

	slog.InfoContext(ctx, "profile logged out", slog.String("profile_id", sess.ProfileID))
	return nil
}

// Profile はプロフィールIDに対応するプロフィールを返す。
// セッションの検証は呼び出し側（セッションミドルウェア）で済んでいる前提。
func (s *Service) Profile(ctx context.Context, profileID string) (*model.Profile, error) {
	if profileID == "" {
		return nil, model.NewUnauthorizedError()
	}

	prof, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load profile",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError()
	}
	if prof == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return prof, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, prof *model.Profile) (*model.Session, error) {
	id, err := session.NewID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &model.Session{
		ID:        id,
		ProfileID: prof.ID,
		Email:     prof.Email,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) recordValidationReject(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRange {
		s.metrics.RecordSendRejected(metrics.RejectRange)
		return
	}
	s.metrics.RecordSendRejected(metrics.RejectFormat)
}

// cooldownRemaining は待機時間の残りを切り上げ秒で返す。範囲は [1, cooldown秒]。
func cooldownRemaining(cooldown, elapsed time.Duration) int {
	remaining := int(math.Ceil((cooldown - elapsed).Seconds()))
	limit := int(math.Ceil(cooldown.Seconds()))
	if remaining < 1 {
		return 1
	}
	if remaining > limit {
		return limit
	}
	return remaining
}
