// Package auth はFirebase IDトークンの検証とユーザーの同期を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/souhyou/server/internal/model"
	"github.com/souhyou/server/internal/repository"
)

// Service はIDトークンを検証し、対応するユーザーをupsertする。
type Service struct {
	verifier TokenVerifier
	userRepo repository.UserRepository
}

// NewService はServiceを生成する。
func NewService(verifier TokenVerifier, userRepo repository.UserRepository) *Service {
	return &Service{
		verifier: verifier,
		userRepo: userRepo,
	}
}

// Authenticate はIDトークンを検証し、ユーザーをupsertして認証主体を返す。
func (s *Service) Authenticate(ctx context.Context, idToken string) (*model.Identity, error) {
	verified, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	identity := verified.Identity
	user, err := s.userRepo.Upsert(ctx, &identity)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	slog.Debug("authenticated",
		slog.String("uid", identity.UID),
		slog.String("user_id", user.ID),
	)
	return &identity, nil
}
