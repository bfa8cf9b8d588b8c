package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func testConfig() Config {
	return Config{Secret: testSigningKey, Issuer: "intake-server", Audience: "intake-api"}
}

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func staffClaims(subject, role string, expiresIn time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "intake-server",
			Audience:  jwt.ClaimStrings{"intake-api"},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name: "Test Staff",
		Role: role,
	}
}

type stubVerifier struct {
	keys map[string]Identity
}

func (s *stubVerifier) VerifyAPIKey(_ context.Context, hash string) (Identity, error) {
	ident, ok := s.keys[hash]
	if !ok {
		return Identity{}, errors.New("unknown key")
	}
	return ident, nil
}

func runMiddleware(t *testing.T, req *http.Request, keys APIKeyVerifier) (error, bool, Identity) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var called bool
	var seen Identity
	handler := func(c echo.Context) error {
		called = true
		seen, _ = IdentityFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}

	err := Middleware(testConfig(), keys)(handler)(c)
	return err, called, seen
}

func wantUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestMiddleware_MissingCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err, called, _ := runMiddleware(t, req, nil)
	wantUnauthorized(t, err)
	if called {
		t.Error("handler should not be called")
	}
}

func TestMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			err, _, _ := runMiddleware(t, req, nil)
			wantUnauthorized(t, err)
		})
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, staffClaims("dr.chen", RoleClinician, time.Hour), testSigningKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	err, called, ident := runMiddleware(t, req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if ident.Subject != "dr.chen" {
		t.Errorf("expected subject dr.chen, got %s", ident.Subject)
	}
	if ident.Role != RoleClinician {
		t.Errorf("expected clinician role, got %s", ident.Role)
	}
	if ident.Name != "Test Staff" {
		t.Errorf("expected name from claims, got %q", ident.Name)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	tokenStr := createTestToken(t, staffClaims("dr.chen", RoleClinician, -time.Hour), testSigningKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	err, _, _ := runMiddleware(t, req, nil)
	wantUnauthorized(t, err)
}

func TestMiddleware_WrongIssuer(t *testing.T) {
	claims := staffClaims("dr.chen", RoleClinician, time.Hour)
	claims.Issuer = "someone-else"
	tokenStr := createTestToken(t, claims, testSigningKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	err, _, _ := runMiddleware(t, req, nil)
	wantUnauthorized(t, err)
}

func TestMiddleware_WrongSigningKey(t *testing.T) {
	tokenStr := createTestToken(t, staffClaims("dr.chen", RoleClinician, time.Hour), []byte("other-key"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	err, _, _ := runMiddleware(t, req, nil)
	wantUnauthorized(t, err)
}

func TestMiddleware_APIKey(t *testing.T) {
	raw, err := GenerateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys := &stubVerifier{keys: map[string]Identity{
		HashKey(raw): {Subject: "dr.okafor", Role: RoleClinician},
	}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", raw)
	mwErr, called, ident := runMiddleware(t, req, keys)
	if mwErr != nil {
		t.Fatalf("unexpected error: %v", mwErr)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if ident.Subject != "dr.okafor" {
		t.Errorf("expected subject dr.okafor, got %s", ident.Subject)
	}
}

func TestMiddleware_UnknownAPIKey(t *testing.T) {
	keys := &stubVerifier{keys: map[string]Identity{}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "ik1_deadbeef")
	err, called, _ := runMiddleware(t, req, keys)
	wantUnauthorized(t, err)
	if called {
		t.Error("handler should not be called")
	}
}

func TestMiddleware_APIKeyWithoutVerifier(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "ik1_deadbeef")
	err, _, _ := runMiddleware(t, req, nil)
	wantUnauthorized(t, err)
}

func TestSignToken_RoundTrip(t *testing.T) {
	tokenStr, err := SignToken(testConfig(), "admin.lee", "Admin Lee", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	mwErr, called, ident := runMiddleware(t, req, nil)
	if mwErr != nil {
		t.Fatalf("unexpected error: %v", mwErr)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if ident.Subject != "admin.lee" || ident.Role != RoleAdmin {
		t.Errorf("unexpected identity: %+v", ident)
	}
}

func TestDevAuthMiddleware_GrantsAdmin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ident, ok := IdentityFromContext(c.Request().Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if ident.Role != RoleAdmin {
			t.Errorf("expected admin, got %s", ident.Role)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
