package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/souhyou/server/internal/model"
)

const (
	// DefaultCertsURL はFirebase IDトークンの署名検証用証明書の公開URL。
	DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	issuerPrefix         = "https://securetoken.google.com/"
	defaultCertsMaxAge   = time.Hour
	minCertsRefreshDelay = time.Minute
	certsFetchTimeout    = 10 * time.Second
)

// ErrUnknownKeyID はトークンのkidに対応する証明書が見つからない場合に返される。
var ErrUnknownKeyID = errors.New("unknown key id")

// VerifiedToken は検証済みIDトークンの内容を表す。
type VerifiedToken struct {
	Identity  model.Identity `json:"identity"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// TokenVerifier はIDトークンを検証するインターフェース。
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*VerifiedToken, error)
}

// FirebaseConfig はFirebase IDトークン検証の設定。
type FirebaseConfig struct {
	ProjectID string
	// CertsURL はテスト用にオーバーライド可能な証明書URL
	CertsURL   string
	HTTPClient *http.Client
}

// firebaseClaims はFirebase IDトークンのクレーム。
type firebaseClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// FirebaseVerifier はGoogleの公開証明書でFirebase IDトークンを検証する。
// 証明書はCache-Controlのmax-ageに従ってキャッシュする。
type FirebaseVerifier struct {
	config FirebaseConfig
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	fetchedAt time.Time
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(config FirebaseConfig) *FirebaseVerifier {
	if config.CertsURL == "" {
		config.CertsURL = DefaultCertsURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: certsFetchTimeout}
	}
	return &FirebaseVerifier{
		config: config,
		now:    time.Now,
	}
}

var (
	defaultVerifierOnce sync.Once
	defaultVerifier     *FirebaseVerifier
)

// DefaultFirebaseVerifier はプロセス全体で共有するFirebaseVerifierを返す。
// 初回呼び出し時の設定で初期化され、以降の設定は無視される。
func DefaultFirebaseVerifier(config FirebaseConfig) *FirebaseVerifier {
	defaultVerifierOnce.Do(func() {
		defaultVerifier = NewFirebaseVerifier(config)
	})
	return defaultVerifier
}

// Verify はIDトークンの署名・発行者・対象・有効期限を検証し、認証主体を返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*VerifiedToken, error) {
	claims := &firebaseClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims,
		func(token *jwt.Token) (interface{}, error) {
			kid, _ := token.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid header")
			}
			return v.publicKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.config.ProjectID),
		jwt.WithIssuer(issuerPrefix+v.config.ProjectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid id token: empty subject")
	}

	return &VerifiedToken{
		Identity: model.Identity{
			UID:     claims.Subject,
			Email:   claims.Email,
			Name:    claims.Name,
			Picture: claims.Picture,
		},
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// publicKey はkidに対応する公開鍵を返す。
// キャッシュが期限切れ、またはkidが見つからない場合は証明書を取得し直す。
func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := v.now().Before(v.expiresAt)
	recentlyFetched := v.now().Sub(v.fetchedAt) < minCertsRefreshDelay
	v.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if !ok && fresh && recentlyFetched {
		return nil, ErrUnknownKeyID
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrUnknownKeyID
}

// refreshKeys は証明書一覧を取得してキャッシュを更新する。
func (v *FirebaseVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.CertsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read certs response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certs fetch failed with status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return fmt.Errorf("failed to parse certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pemData := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			return fmt.Errorf("failed to parse certificate %s: %w", kid, err)
		}
		keys[kid] = key
	}

	now := v.now()
	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = now
	v.expiresAt = now.Add(parseMaxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()
	return nil
}

// parseMaxAge はCache-Controlヘッダーからmax-ageを取り出す。
func parseMaxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || seconds <= 0 {
			break
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultCertsMaxAge
}

// compile-time interface check
var _ TokenVerifier = (*FirebaseVerifier)(nil)
