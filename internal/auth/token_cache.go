package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache は検証済みIDトークンのキャッシュ。
type TokenCache interface {
	// Get はキャッシュ済みの検証結果を返す。存在しない場合はnilを返す。
	Get(ctx context.Context, tokenHash string) (*VerifiedToken, error)
	// Set は検証結果をttlの間保存する。
	Set(ctx context.Context, tokenHash string, token *VerifiedToken, ttl time.Duration) error
}

// HashToken はIDトークンのキャッシュキーに使うSHA-256ハッシュを返す。
// トークン自体はキャッシュに保存しない。
func HashToken(idToken string) string {
	sum := sha256.Sum256([]byte(idToken))
	return hex.EncodeToString(sum[:])
}

// RedisTokenCache はRedisを使用したTokenCache。
type RedisTokenCache struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenCache はRedis URLから接続を確立してRedisTokenCacheを生成する。
func NewRedisTokenCache(redisURL string) (*RedisTokenCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisTokenCacheWithClient(client), nil
}

// NewRedisTokenCacheWithClient は既存のクライアントからRedisTokenCacheを生成する。
func NewRedisTokenCacheWithClient(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, prefix: "idtoken:"}
}

func (c *RedisTokenCache) key(tokenHash string) string {
	return c.prefix + tokenHash
}

// Get はキャッシュ済みの検証結果を返す。存在しない場合はnilを返す。
func (c *RedisTokenCache) Get(ctx context.Context, tokenHash string) (*VerifiedToken, error) {
	data, err := c.client.Get(ctx, c.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token cache: %w", err)
	}

	var token VerifiedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("unmarshal cached token: %w", err)
	}
	return &token, nil
}

// Set は検証結果をttlの間保存する。
func (c *RedisTokenCache) Set(ctx context.Context, tokenHash string, token *VerifiedToken, ttl time.Duration) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := c.client.Set(ctx, c.key(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("save token cache: %w", err)
	}
	return nil
}

// Ping はRedisへの接続を確認する。
func (c *RedisTokenCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close はRedis接続を閉じる。
func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}

// CachingVerifier は検証結果をキャッシュするTokenVerifier。
// キャッシュの有効期間はトークンの有効期限とmaxTTLの短い方になる。
// キャッシュの障害は検証結果に影響させない。
type CachingVerifier struct {
	next   TokenVerifier
	cache  TokenCache
	maxTTL time.Duration
	now    func() time.Time
}

// NewCachingVerifier はCachingVerifierを生成する。
func NewCachingVerifier(next TokenVerifier, cache TokenCache, maxTTL time.Duration) *CachingVerifier {
	return &CachingVerifier{
		next:   next,
		cache:  cache,
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

// Verify はキャッシュを参照し、なければ検証してキャッシュに保存する。
func (v *CachingVerifier) Verify(ctx context.Context, idToken string) (*VerifiedToken, error) {
	tokenHash := HashToken(idToken)

	cached, err := v.cache.Get(ctx, tokenHash)
	if err != nil {
		slog.Warn("トークンキャッシュの参照に失敗", "error", err)
	}
	if cached != nil && v.now().Before(cached.ExpiresAt) {
		return cached, nil
	}

	verified, err := v.next.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	ttl := verified.ExpiresAt.Sub(v.now())
	if v.maxTTL > 0 && ttl > v.maxTTL {
		ttl = v.maxTTL
	}
	if ttl > 0 {
		if err := v.cache.Set(ctx, tokenHash, verified, ttl); err != nil {
			slog.Warn("トークンキャッシュの保存に失敗", "error", err)
		}
	}
	return verified, nil
}

// compile-time interface check
var (
	_ TokenCache    = (*RedisTokenCache)(nil)
	_ TokenVerifier = (*CachingVerifier)(nil)
)
