package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/souhyou/server/internal/auth"
	"github.com/souhyou/server/internal/config"
	"github.com/souhyou/server/internal/database"
	"github.com/souhyou/server/internal/graph"
	"github.com/souhyou/server/internal/handler"
	"github.com/souhyou/server/internal/item"
	"github.com/souhyou/server/internal/logger"
	"github.com/souhyou/server/internal/metrics"
	"github.com/souhyou/server/internal/middleware"
	"github.com/souhyou/server/internal/repository"
	"github.com/souhyou/server/internal/security"
	"github.com/souhyou/server/internal/user"
	"github.com/souhyou/server/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
	defaultPort     = "4000"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("firebase_project_id", cfg.FirebaseProjectID),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// server はserveモードで組み立てた依存関係を保持する。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	tokenCache  *auth.RedisTokenCache
}

// Close はバックグラウンド処理と外部接続を解放する。
func (s *server) Close() {
	s.rateLimiter.Stop()
	if s.tokenCache != nil {
		s.tokenCache.Close()
	}
}

// newServer は全依存関係をワイヤリングし、HTTPハンドラーを構築する。
// REDIS_URLに接続できない場合はトークンキャッシュなしで起動する。
func newServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)

	// 2. 認証（Firebase IDトークン検証 + 任意のRedisキャッシュ）
	verifier, syncer, err := newIdentityProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	checks := []handler.ReadinessCheck{
		{Name: "postgres", Check: db.PingContext},
	}

	var tokenCache *auth.RedisTokenCache
	if cfg.RedisURL != "" {
		cache, err := auth.NewRedisTokenCache(cfg.RedisURL)
		if err != nil {
			slog.Warn("token cache disabled", slog.String("error", err.Error()))
		} else {
			tokenCache = cache
			verifier = auth.NewCachingVerifier(verifier, cache, cfg.TokenCacheTTL)
			checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: cache.Ping})
			slog.Info("token cache enabled", slog.Duration("max_ttl", cfg.TokenCacheTTL))
		}
	}

	authService := auth.NewService(verifier, userRepo)

	// 3. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	itemService := item.NewService(itemRepo, sanitizer, item.NewCascadePolicy(cfg.ItemDeleteCascade, itemRepo))
	userService := user.NewService(userRepo, syncer)

	// 4. GraphQLスキーマ
	schema, err := graph.NewSchema(graph.NewResolver(itemService, userService, collector), cfg.GraphQLMaxDepth)
	if err != nil {
		if tokenCache != nil {
			tokenCache.Close()
		}
		return nil, fmt.Errorf("failed to build graphql schema: %w", err)
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral))

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:      authService,
		CORSAllowedOrigins: middleware.ParseOrigins(cfg.WebOrigin),
		RateLimiter:        rateLimiter,
		Logger:             slog.Default(),
		StatusRecorder:     collector,
		GraphQL:            graph.NewHandler(schema),
		Metrics:            metrics.Handler(reg),
		ReadinessChecks:    checks,
	})

	return &server{
		handler:     router,
		rateLimiter: rateLimiter,
		tokenCache:  tokenCache,
	}, nil
}

// newIdentityProvider はIDトークン検証器とプロフィール同期先を返す。
// 通常はFirebase Admin SDKを使い、FIREBASE_CERTS_URLを上書きした場合
// （エミュレーターやテスト用の証明書）はそのURLの証明書で直接検証する。
// プロフィール同期はサービスアカウントが設定されている場合のみ行う。
func newIdentityProvider(ctx context.Context, cfg *config.Config) (auth.TokenVerifier, user.ProfileSyncer, error) {
	if cfg.FirebaseCertsURL != config.DefaultCertsURL {
		slog.Info("using custom firebase certs url", slog.String("certs_url", cfg.FirebaseCertsURL))
		return auth.DefaultFirebaseVerifier(auth.FirebaseConfig{
			ProjectID: cfg.FirebaseProjectID,
			CertsURL:  cfg.FirebaseCertsURL,
		}), nil, nil
	}

	admin, err := auth.NewFirebaseAdmin(ctx, auth.AdminConfig{
		ProjectID:         cfg.FirebaseProjectID,
		ServiceAccountB64: cfg.FirebaseServiceAccountB64,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize firebase admin: %w", err)
	}
	if cfg.FirebaseServiceAccountB64 == "" {
		slog.Warn("FIREBASE_SERVICE_ACCOUNT_B64 is not set; profile sync to firebase is disabled")
		return admin, nil, nil
	}
	return admin, admin, nil
}

// newRegistry はプロセス・ランタイムメトリクスを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv, err := newServer(cfg, db, newRegistry())
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、孤児アイテムの定期削除を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	job := cleanup.NewOrphanSweepJob(db, slog.Default(), metrics.NewCollector(reg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ヘルスチェックとメトリクスのみを公開する
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           newWorkerRouter(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("orphan_sweep_interval", cfg.OrphanSweepInterval),
		slog.String("addr", httpServer.Addr),
	)

	job.Start(ctx, cfg.OrphanSweepInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// newWorkerRouter はワーカー用の /health と /metrics を返すルーターを構築する。
func newWorkerRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Get("/health", handler.HealthHandler)
	r.Handle("/metrics", metrics.Handler(reg))
	return r
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
