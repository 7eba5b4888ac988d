package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/souhyou/server/internal/model"
)

// AdminConfig はFirebase Admin SDKの初期化設定。
type AdminConfig struct {
	ProjectID string
	// ServiceAccountB64 はbase64エンコードされたサービスアカウントJSON。
	// 空の場合は認証情報なしで初期化し、IDトークン検証のみ行える。
	ServiceAccountB64 string
}

// adminClient はAdmin SDKのうち利用する操作。*fbauth.Clientが満たす。
type adminClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	UpdateUser(ctx context.Context, uid string, user *fbauth.UserToUpdate) (*fbauth.UserRecord, error)
}

// FirebaseAdmin はFirebase Admin SDKによるIDトークン検証とプロフィール同期を提供する。
type FirebaseAdmin struct {
	client adminClient
}

// NewFirebaseAdmin はAdmin SDKのアプリとAuthクライアントを初期化する。
func NewFirebaseAdmin(ctx context.Context, config AdminConfig) (*FirebaseAdmin, error) {
	var opts []option.ClientOption
	if config.ServiceAccountB64 != "" {
		credentials, err := base64.StdEncoding.DecodeString(config.ServiceAccountB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode service account: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentials))
	} else {
		opts = append(opts, option.WithoutAuthentication())
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: config.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return &FirebaseAdmin{client: client}, nil
}

// Verify はAdmin SDKでIDトークンを検証し、認証主体を返す。
func (a *FirebaseAdmin) Verify(ctx context.Context, idToken string) (*VerifiedToken, error) {
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", err)
	}
	if token.UID == "" {
		return nil, fmt.Errorf("invalid id token: empty subject")
	}
	return &VerifiedToken{
		Identity: model.Identity{
			UID:     token.UID,
			Email:   stringClaim(token.Claims, "email"),
			Name:    stringClaim(token.Claims, "name"),
			Picture: stringClaim(token.Claims, "picture"),
		},
		ExpiresAt: time.Unix(token.Expires, 0),
	}, nil
}

// SyncProfile はupdateMeで変更した表示名・画像URLをFirebase側のユーザーにも反映する。
func (a *FirebaseAdmin) SyncProfile(ctx context.Context, uid string, update model.ProfileUpdate) error {
	params := &fbauth.UserToUpdate{}
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
	}
	if update.PhotoURL != nil {
		params = params.PhotoURL(*update.PhotoURL)
	}
	if _, err := a.client.UpdateUser(ctx, uid, params); err != nil {
		return fmt.Errorf("failed to update firebase user: %w", err)
	}
	return nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}

// compile-time interface check
var _ TokenVerifier = (*FirebaseAdmin)(nil)
