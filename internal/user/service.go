// Package user はログインユーザー自身のプロフィール操作を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/souhyou/server/internal/model"
	"github.com/souhyou/server/internal/repository"
)

// ProfileSyncer は変更したプロフィールを認証基盤側のユーザーへ反映する。
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, uid string, update model.ProfileUpdate) error
}

// Service はユーザープロフィールのサービス層。
type Service struct {
	userRepo repository.UserRepository
	syncer   ProfileSyncer
}

// NewService はServiceの新しいインスタンスを生成する。syncerはnilでもよい。
func NewService(userRepo repository.UserRepository, syncer ProfileSyncer) *Service {
	return &Service{userRepo: userRepo, syncer: syncer}
}

// Me はUIDに対応するユーザーを返す。存在しない場合はnilを返す。
func (s *Service) Me(ctx context.Context, uid string) (*model.User, error) {
	user, err := s.userRepo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// UpdateMe は表示名・プロフィール画像URLを更新し、可能ならFirebase側にも反映する。
// 変更項目がない場合は現在のユーザーをそのまま返す。
func (s *Service) UpdateMe(ctx context.Context, uid string, update model.ProfileUpdate) (*model.User, error) {
	if update.DisplayName == nil && update.PhotoURL == nil {
		user, err := s.Me(ctx, uid)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, model.NewUserNotFoundError()
		}
		return user, nil
	}

	user, err := s.userRepo.UpdateProfile(ctx, uid, update)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("プロフィールを更新しました",
		slog.String("uid", uid),
	)

	// 認証基盤側の更新失敗は結果に影響させない
	if s.syncer != nil {
		if err := s.syncer.SyncProfile(ctx, uid, update); err != nil {
			slog.Warn("認証基盤のプロフィール更新に失敗しました",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		}
	}
	return user, nil
}
