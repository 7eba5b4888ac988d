package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultCertsURL はFirebase IDトークン署名証明書の公開URL。
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Firebase
	FirebaseProjectID string
	FirebaseCertsURL  string
	// サービスアカウントJSON（base64）。空の場合はプロフィール同期を行えない
	FirebaseServiceAccountB64 string

	// Token cache（REDIS_URLが空の場合は無効）
	RedisURL      string
	TokenCacheTTL time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int

	// GraphQL
	GraphQLMaxDepth int

	// Items
	ItemDeleteCascade   bool
	OrphanSweepInterval time.Duration

	// Server
	ServerPort string

	// CORS（カンマ区切りの許可オリジン）
	WebOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	if cfg.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.FirebaseCertsURL = getEnvString("FIREBASE_CERTS_URL", DefaultCertsURL)
	cfg.FirebaseServiceAccountB64 = os.Getenv("FIREBASE_SERVICE_ACCOUNT_B64")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.TokenCacheTTL = getEnvDuration("TOKEN_CACHE_TTL", 5*time.Minute)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.GraphQLMaxDepth = getEnvInt("GRAPHQL_MAX_DEPTH", 12)

	cfg.ItemDeleteCascade = getEnvBool("ITEM_DELETE_CASCADE", false)
	cfg.OrphanSweepInterval = getEnvDuration("ORPHAN_SWEEP_INTERVAL", 24*time.Hour)

	cfg.ServerPort = getEnvString("SERVER_PORT", "4000")
	cfg.WebOrigin = getEnvString("WEB_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
