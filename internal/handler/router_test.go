package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/souhyou/server/internal/graph"
	"github.com/souhyou/server/internal/metrics"
	"github.com/souhyou/server/internal/middleware"
	"github.com/souhyou/server/internal/model"
)

// --- モック ---

type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, idToken string) (*model.Identity, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, idToken string) (*model.Identity, error) {
	return m.authenticateFn(ctx, idToken)
}

// stubItemService は必要なメソッドのみ上書きするgraph.ItemService。
type stubItemService struct {
	graph.ItemService
	myItemsFn func(ctx context.Context, ownerID string, parentID *string) ([]model.Item, error)
}

func (s *stubItemService) MyItems(ctx context.Context, ownerID string, parentID *string) ([]model.Item, error) {
	return s.myItemsFn(ctx, ownerID, parentID)
}

type stubUserService struct {
	graph.UserService
}

func (stubUserService) Me(ctx context.Context, uid string) (*model.User, error) {
	return &model.User{ID: "owner-1", UID: uid}, nil
}

// --- ヘルパー ---

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.Authenticator == nil {
		deps.Authenticator = &mockAuthenticator{
			authenticateFn: func(ctx context.Context, idToken string) (*model.Identity, error) {
				if idToken == "good-token" {
					return &model.Identity{UID: "uid-1"}, nil
				}
				return nil, errors.New("invalid token")
			},
		}
	}
	if deps.GraphQL == nil {
		items := &stubItemService{
			myItemsFn: func(ctx context.Context, ownerID string, parentID *string) ([]model.Item, error) {
				return []model.Item{{
					ID: "folder-1", OwnerID: ownerID, Type: model.ItemTypeFolder, Name: "2025", Path: "/2025",
					Ancestors: []string{}, Horses: []model.Horse{},
					CreatedAt: time.Now(), UpdatedAt: time.Now(),
				}}, nil
			},
		}
		schema, err := graph.NewSchema(graph.NewResolver(items, stubUserService{}, nil), 0)
		if err != nil {
			t.Fatalf("NewSchema returned error: %v", err)
		}
		deps.GraphQL = graph.NewHandler(schema)
	}
	if deps.CORSAllowedOrigins == nil {
		deps.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}
	return NewRouter(deps)
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string                 `json:"message"`
		Extensions map[string]interface{} `json:"extensions"`
	} `json:"errors"`
}

func postGraphQL(t *testing.T, router http.Handler, token, query string) (*http.Response, graphQLResponse) {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{"query": query})
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out graphQLResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode graphql response: %v", err)
	}
	return w.Result(), out
}

// --- テスト ---

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("GET /health = %d %q, want 200 ok", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("security headers should be applied")
	}
}

func TestRouter_Readyz(t *testing.T) {
	healthy := ReadinessCheck{Name: "postgres", Check: func(ctx context.Context) error { return nil }}
	broken := ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return errors.New("dial tcp: refused") }}

	tests := []struct {
		name       string
		checks     []ReadinessCheck
		wantStatus int
		wantReady  bool
	}{
		{"全て正常", []ReadinessCheck{healthy}, http.StatusOK, true},
		{"依存先なし", nil, http.StatusOK, true},
		{"一部失敗", []ReadinessCheck{healthy, broken}, http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &RouterDeps{ReadinessChecks: tt.checks})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			var body struct {
				Ready        bool              `json:"ready"`
				Dependencies map[string]string `json:"dependencies"`
			}
			if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Ready != tt.wantReady {
				t.Errorf("ready = %v, want %v", body.Ready, tt.wantReady)
			}
			if !tt.wantReady && body.Dependencies["redis"] != "unavailable" {
				t.Errorf("dependencies = %v", body.Dependencies)
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	router := newTestRouter(t, &RouterDeps{
		Metrics:        metrics.Handler(reg),
		StatusRecorder: collector,
	})

	postGraphQL(t, router, "", `{ health }`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Result().Body)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", w.Result().StatusCode)
	}
	if !strings.Contains(string(body), `souhyou_http_status_total{status_code="200"} 1`) {
		t.Errorf("metrics should count the graphql request, got:\n%s", body)
	}
}

func TestRouter_GraphQL_Authenticated(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	resp, out := postGraphQL(t, router, "good-token", `{ myItems { id path type } }`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(out.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}

	var data struct {
		MyItems []struct {
			ID   string `json:"id"`
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"myItems"`
	}
	if err := json.Unmarshal(out.Data, &data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if len(data.MyItems) != 1 || data.MyItems[0].Path != "/2025" || data.MyItems[0].Type != "FOLDER" {
		t.Errorf("myItems = %+v", data.MyItems)
	}
}

func TestRouter_GraphQL_InvalidTokenFailsOpen(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	// healthは認証不要
	resp, out := postGraphQL(t, router, "bad-token", `{ health }`)
	if resp.StatusCode != http.StatusOK || len(out.Errors) != 0 {
		t.Errorf("health with bad token: status=%d errors=%+v", resp.StatusCode, out.Errors)
	}

	_, out = postGraphQL(t, router, "bad-token", `{ myItems { id } }`)
	if len(out.Errors) != 1 || out.Errors[0].Message != model.ErrCodeUnauthenticated {
		t.Fatalf("errors = %+v, want UNAUTHENTICATED", out.Errors)
	}
	if out.Errors[0].Extensions["category"] != "auth" {
		t.Errorf("extensions = %v", out.Errors[0].Extensions)
	}
}

func TestRouter_GraphQL_Preflight(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Result().StatusCode)
	}
	if got := w.Result().Header.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q", got)
	}
}

func TestRouter_GraphQL_RateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()
	router := newTestRouter(t, &RouterDeps{RateLimiter: rl})

	postGraphQL(t, router, "good-token", `{ health }`)

	body := strings.NewReader(`{"query":"{ health }"}`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", body)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Result().StatusCode)
	}
}

func TestRouter_GraphQL_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	if w.Result().StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Result().StatusCode)
	}
}
