// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/souhyou/server/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証主体を格納するためのキー。
var identityContextKey = contextKey("identity")

// Authenticator はIDトークンを検証して認証主体を返すインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, idToken string) (*model.Identity, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証主体をリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない・検証に失敗した場合もリクエストは拒否せず、未認証のまま後続へ渡す。
// 認証が必要かどうかはGraphQLリゾルバー側で判定する。
func NewAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				slog.Warn("failed to authenticate request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// IdentityFromContext はリクエストコンテキストから認証主体を取得する。
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil || identity.UID == "" {
		return nil, false
	}
	return identity, true
}

// ContextWithIdentity はコンテキストに認証主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
