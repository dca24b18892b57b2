// Package profile は学生プロフィールの解決と作成を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/projvault/internal/identity"
	"github.com/hitoshi/projvault/internal/model"
	"github.com/hitoshi/projvault/internal/repository"
)

// Service はプロフィール管理のサービス層。
type Service struct {
	repo repository.ProfileRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。nowがnilの場合はtime.Nowを使う。
func NewService(repo repository.ProfileRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// ResolveOrCreate はメールアドレスに対応するプロフィールを返す。
// 存在しない場合は検証済みのIdentityから新規作成する。既存プロフィールの属性は更新しない。
func (s *Service) ResolveOrCreate(ctx context.Context, id identity.Identity) (*model.Profile, error) {
	// 1. 既存プロフィールを検索
	existing, err := s.repo.FindByEmail(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	// 2. 新規作成（並行作成時は先に作成された行が返る）
	now := s.now()
	created, err := s.repo.CreateIfAbsent(ctx, &model.Profile{
		ID:              uuid.New().String(),
		Email:           id.Email,
		AdmissionYear:   id.AdmissionYear,
		StudentSequence: id.StudentSequence,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	slog.InfoContext(ctx, "profile created",
		slog.String("profile_id", created.ID),
		slog.Int("admission_year", created.AdmissionYear),
	)
	return created, nil
}

// Get は指定IDのプロフィールを返す。見つからない場合はnilを返す。
func (s *Service) Get(ctx context.Context, profileID string) (*model.Profile, error) {
	p, err := s.repo.FindByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}
