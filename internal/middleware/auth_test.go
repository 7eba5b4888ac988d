package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/souhyou/server/internal/model"
)

// mockAuthenticator はテスト用のAuthenticatorモック。
type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, idToken string) (*model.Identity, error)
	calls          int
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, idToken string) (*model.Identity, error) {
	m.calls++
	return m.authenticateFn(ctx, idToken)
}

// captureIdentity は後続ハンドラーに渡った認証主体を記録するハンドラーを返す。
func captureIdentity(got **model.Identity, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if identity, ok := IdentityFromContext(r.Context()); ok {
			*got = identity
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken_InjectsIdentity(t *testing.T) {
	authn := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, idToken string) (*model.Identity, error) {
			if idToken != "valid-token" {
				t.Errorf("idToken = %q, want %q", idToken, "valid-token")
			}
			return &model.Identity{UID: "uid-1", Email: "a@example.com"}, nil
		},
	}

	var got *model.Identity
	var called bool
	handler := NewAuthMiddleware(authn)(captureIdentity(&got, &called))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("handler should have been called")
	}
	if got == nil || got.UID != "uid-1" {
		t.Errorf("identity = %+v, want uid-1", got)
	}
}

func TestAuthMiddleware_NoHeader_ContinuesWithoutIdentity(t *testing.T) {
	authn := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, idToken string) (*model.Identity, error) {
			t.Error("Authenticate must not be called without a bearer token")
			return nil, nil
		},
	}

	tests := []struct {
		name   string
		header string
	}{
		{"ヘッダーなし", ""},
		{"Basic認証", "Basic dXNlcjpwYXNz"},
		{"トークンなし", "Bearer "},
		{"スキームのみ", "Bearer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *model.Identity
			var called bool
			handler := NewAuthMiddleware(authn)(captureIdentity(&got, &called))

			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !called {
				t.Error("handler should have been called")
			}
			if got != nil {
				t.Errorf("identity = %+v, want nil", got)
			}
		})
	}
}

func TestAuthMiddleware_InvalidToken_FailsOpen(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	authn := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, idToken string) (*model.Identity, error) {
			return nil, errors.New("token expired")
		},
	}

	var got *model.Identity
	var called bool
	handler := NewAuthMiddleware(authn)(captureIdentity(&got, &called))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.Header.Set("Authorization", "bearer expired-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("handler should have been called")
	}
	if got != nil {
		t.Errorf("identity = %+v, want nil", got)
	}
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if authn.calls != 1 {
		t.Errorf("Authenticate calls = %d, want 1", authn.calls)
	}
	if !strings.Contains(buf.String(), "token expired") {
		t.Errorf("expected authentication failure to be logged, got %q", buf.String())
	}
}

func TestIdentityFromContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity in empty context")
	}

	ctx := ContextWithIdentity(context.Background(), &model.Identity{UID: ""})
	if _, ok := IdentityFromContext(ctx); ok {
		t.Error("identity with empty UID should be ignored")
	}

	ctx = ContextWithIdentity(context.Background(), &model.Identity{UID: "uid-9"})
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.UID != "uid-9" {
		t.Errorf("identity = %+v, ok = %v", identity, ok)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer   abc", "abc", true},
		{"  Bearer abc  ", "abc", true},
		{"Token abc", "", false},
		{"Bearerabc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
