// Package handler はHTTPルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/souhyou/server/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator      middleware.Authenticator
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger
	StatusRecorder     middleware.HTTPStatusRecorder

	// エンドポイント
	GraphQL         http.Handler
	Metrics         http.Handler
	ReadinessChecks []ReadinessCheck
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Auth → Logging → RateLimit
//
// /health・/readyz・/metrics は認証・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// CORSはプリフライトに応答するためルーティング前に適用する
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	// --- 認証不要のルート ---
	r.Get("/health", HealthHandler)
	r.Get("/readyz", NewReadyHandler(deps.ReadinessChecks))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	// --- GraphQL ---
	// 認証は失敗しても拒否しない。認証要否はリゾルバーが判定する。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Post("/graphql", deps.GraphQL.ServeHTTP)
	})

	return r
}
