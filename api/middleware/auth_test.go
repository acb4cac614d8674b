package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/pkg/auth"
	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWTConfig(), stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWTConfig(), stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, "user42", enums.RoleBuyer)

	var captured identity.Identity
	handler := Auth(cfg, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UserID != "user42" {
		t.Fatalf("expected user42 in context, got %q", captured.UserID)
	}
	if !captured.CanBuy() {
		t.Fatal("expected buyer role carried into identity")
	}
	if captured.AccessToken != token || captured.SessionID == "" {
		t.Fatalf("expected token and session id on identity, got %+v", captured)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, "user42", enums.RoleBuyer)
	handler := Auth(cfg, stubSessionVerifier{ok: false}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSessionStoreFailure(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, "user42", enums.RoleBuyer)
	handler := Auth(cfg, stubSessionVerifier{err: errors.New("redis down")}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable && resp.Code != http.StatusBadGateway {
		t.Fatalf("expected dependency failure status got %d", resp.Code)
	}
}

func TestOptionalAuthTreatsAnonymousAsGuest(t *testing.T) {
	var captured identity.Identity
	called := false
	handler := OptionalAuth(testJWTConfig(), stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected anonymous request to pass, got %d", resp.Code)
	}
	if !captured.IsGuest() || captured.Key() != "guest" {
		t.Fatalf("expected guest identity, got %+v", captured)
	}
}

func TestOptionalAuthStillRejectsBadToken(t *testing.T) {
	handler := OptionalAuth(testJWTConfig(), stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RequireRole(nil, enums.RoleOperationalManager, enums.RoleFinancialManager)

	cases := []struct {
		name string
		id   identity.Identity
		want int
	}{
		{"guest", identity.Guest(), http.StatusUnauthorized},
		{"buyer", identity.Identity{UserID: "u1", Roles: []enums.Role{enums.RoleBuyer}}, http.StatusForbidden},
		{"financial manager", identity.Identity{UserID: "u2", Roles: []enums.Role{enums.RoleFinancialManager}}, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), tc.id))
		resp := httptest.NewRecorder()
		mw(next).ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.Code)
		}
	}
}

func TestClientContext(t *testing.T) {
	var seen string
	handler := ClientContext(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	missing := httptest.NewRecorder()
	handler.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/", nil))
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without header, got %d", missing.Code)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set(ClientIDHeader, "has spaces/and slashes")
	badResp := httptest.NewRecorder()
	handler.ServeHTTP(badResp, bad)
	if badResp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed header, got %d", badResp.Code)
	}

	ok := httptest.NewRequest(http.MethodGet, "/", nil)
	ok.Header.Set(ClientIDHeader, "device-a")
	okResp := httptest.NewRecorder()
	handler.ServeHTTP(okResp, ok)
	if okResp.Code != http.StatusOK || seen != "device-a" {
		t.Fatalf("expected device-a in context, got %d %q", okResp.Code, seen)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID string, roles ...enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Roles: roles})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}
