package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/souhyou/server/internal/auth"
	"github.com/souhyou/server/internal/config"
	"github.com/souhyou/server/internal/database"
)

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:         unreachableDatabaseURL,
		FirebaseProjectID:   "souhyou-test",
		FirebaseCertsURL:    config.DefaultCertsURL,
		TokenCacheTTL:       5 * time.Minute,
		RateLimitGeneral:    120,
		GraphQLMaxDepth:     12,
		OrphanSweepInterval: time.Hour,
		ServerPort:          "4000",
		WebOrigin:           "http://localhost:3000/",
	}
}

// newTestServer はDBに接続せずにserveモードの依存関係を組み立てる。
func newTestServer(t *testing.T, cfg *config.Config) *server {
	t.Helper()
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv, err := newServer(cfg, db, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

type graphQLResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func postGraphQL(t *testing.T, h http.Handler, query, authorization string) (*httptest.ResponseRecorder, graphQLResponse) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"query": query})
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp graphQLResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid graphql response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestNewServer_HealthEndpoints(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("/health = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz status = %d, want 503 with unreachable database", rec.Code)
	}
	var ready struct {
		Ready        bool              `json:"ready"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ready); err != nil {
		t.Fatalf("invalid /readyz body: %v", err)
	}
	if ready.Dependencies["postgres"] != "unavailable" {
		t.Errorf("postgres = %q, want unavailable", ready.Dependencies["postgres"])
	}
	if _, ok := ready.Dependencies["redis"]; ok {
		t.Error("redis check should not be registered without REDIS_URL")
	}
}

func TestNewServer_GraphQLHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec, resp := postGraphQL(t, srv.handler, "{ health }", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Data["health"] != "ok" {
		t.Errorf("health = %v, want ok", resp.Data["health"])
	}

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `souhyou_http_status_total{status_code="200"}`) {
		t.Errorf("/metrics should expose http status counter, got:\n%s", body)
	}
}

// 不正なトークンでも拒否せず、認証が必要な操作のみUNAUTHENTICATEDになること。
func TestNewServer_InvalidTokenFailsOpen(t *testing.T) {
	srv := newTestServer(t, testConfig())

	_, resp := postGraphQL(t, srv.handler, "{ health }", "Bearer not-a-jwt")
	if resp.Data["health"] != "ok" {
		t.Errorf("health = %v, want ok", resp.Data["health"])
	}

	_, resp = postGraphQL(t, srv.handler, "{ myItems { id } }", "Bearer not-a-jwt")
	if len(resp.Errors) == 0 || resp.Errors[0].Message != "UNAUTHENTICATED" {
		t.Errorf("errors = %+v, want UNAUTHENTICATED", resp.Errors)
	}
}

func TestNewServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNewServer_WithRedisTokenCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	srv := newTestServer(t, cfg)
	if srv.tokenCache == nil {
		t.Fatal("token cache should be enabled when REDIS_URL is reachable")
	}

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var ready struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ready); err != nil {
		t.Fatalf("invalid /readyz body: %v", err)
	}
	if ready.Dependencies["redis"] != "ok" {
		t.Errorf("redis = %q, want ok", ready.Dependencies["redis"])
	}
}

func TestNewServer_UnreachableRedisDisablesCache(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	srv := newTestServer(t, cfg)
	if srv.tokenCache != nil {
		t.Error("token cache should be disabled when REDIS_URL is unreachable")
	}
}

func TestNewIdentityProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("既定ではAdmin SDKで検証し同期しない", func(t *testing.T) {
		verifier, syncer, err := newIdentityProvider(ctx, testConfig())
		if err != nil {
			t.Fatalf("newIdentityProvider: %v", err)
		}
		if _, ok := verifier.(*auth.FirebaseAdmin); !ok {
			t.Errorf("verifier = %T, want *auth.FirebaseAdmin", verifier)
		}
		if syncer != nil {
			t.Errorf("syncer = %T, want nil without service account", syncer)
		}
	})

	t.Run("証明書URLの上書きでは直接検証", func(t *testing.T) {
		cfg := testConfig()
		cfg.FirebaseCertsURL = "http://127.0.0.1:1/certs"
		verifier, syncer, err := newIdentityProvider(ctx, cfg)
		if err != nil {
			t.Fatalf("newIdentityProvider: %v", err)
		}
		if _, ok := verifier.(*auth.FirebaseVerifier); !ok {
			t.Errorf("verifier = %T, want *auth.FirebaseVerifier", verifier)
		}
		if syncer != nil {
			t.Errorf("syncer = %T, want nil", syncer)
		}
	})

	t.Run("不正なサービスアカウントはエラー", func(t *testing.T) {
		cfg := testConfig()
		cfg.FirebaseServiceAccountB64 = "not base64!"
		if _, _, err := newIdentityProvider(ctx, cfg); err == nil {
			t.Error("expected error for invalid service account")
		}
	})
}

func TestNewRegistry_IncludesRuntimeMetrics(t *testing.T) {
	families, err := newRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "go_goroutines" {
			return
		}
	}
	t.Error("go_goroutines should be registered")
}

func TestNewWorkerRouter_ExposesHealthAndMetrics(t *testing.T) {
	reg := newRegistry()
	h := newWorkerRouter(reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("/metrics = %d, want runtime metrics", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/graphql status = %d, want 404 on worker", rec.Code)
	}
}
