package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "https://issuer.example",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "acme",
		Roles:    []string{"integrator"},
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func runMiddleware(mw echo.MiddlewareFunc, path, authHeader string) (echo.Context, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath(path)
	return c, mw(okHandler)(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

// ===== HS256 =====

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "/api/v1/transactions", "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(mw, "/api/v1/transactions", tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	c, err := runMiddleware(JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "https://issuer.example"}), "/api/v1/transactions", "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := c.Get("jwt_tenant_id").(string); got != "acme" {
		t.Errorf("expected tenant acme, got %q", got)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "user-1" {
		t.Errorf("expected user-1, got %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "integrator" {
		t.Errorf("expected [integrator], got %v", roles)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"someone-else"}

	tests := []struct {
		name   string
		claims Claims
		key    []byte
	}{
		{"expired", expired, testSigningKey},
		{"wrong key", validClaims(), []byte("another-key")},
		{"wrong audience", wrongAudience, testSigningKey},
	}
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Audience: "hl7bridge"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(mw, "/api/v1/transactions", "Bearer "+createTestToken(t, tt.claims, tt.key))
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

// ===== JWKS =====

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			json.NewEncoder(w).Encode(map[string]string{"jwks_uri": srv.URL + "/keys"})
		case "/keys":
			json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{{
				Kty: "RSA",
				Kid: kid,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return srv
}

func TestJWTMiddleware_JWKSDiscovery(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := jwksServer(t, "k1", &priv.PublicKey)
	defer srv.Close()

	claims := validClaims()
	claims.Issuer = srv.URL
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	mw := JWTMiddleware(JWTConfig{Issuer: srv.URL})
	c, err := runMiddleware(mw, "/api/v1/transactions", "Bearer "+signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := c.Get("jwt_tenant_id").(string); got != "acme" {
		t.Errorf("expected tenant acme, got %q", got)
	}

	// An HS256 token must not verify against the RS256 key set.
	_, err = runMiddleware(mw, "/api/v1/transactions", "Bearer "+createTestToken(t, claims, testSigningKey))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWKSCache_UnknownKid(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, "k1", &priv.PublicKey)
	defer srv.Close()

	cache := NewJWKSCache(srv.URL+"/keys", "", time.Minute)
	if _, err := cache.GetKey("k1"); err != nil {
		t.Errorf("expected k1 to resolve, got %v", err)
	}
	if _, err := cache.GetKey("k2"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

// ===== Skipper =====

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	for _, path := range []string{"/health", "/ready"} {
		if _, err := runMiddleware(mw, path, ""); err != nil {
			t.Errorf("expected %s to skip auth, got %v", path, err)
		}
	}
	_, err := runMiddleware(mw, "/api/v1/convert/hl7-to-fhir", "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") {
		t.Error("expected /health to be public")
	}
	if IsPublicPath("/api/v1/webhooks") {
		t.Error("expected /api/v1/webhooks to be protected")
	}
}

// ===== Dev =====

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	c, err := runMiddleware(DevAuthMiddleware(), "/api/v1/transactions", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(c.Request().Context()) != "dev-user" {
		t.Errorf("expected dev-user, got %q", UserIDFromContext(c.Request().Context()))
	}
	if c.Get("jwt_tenant_id") != nil {
		t.Error("expected dev auth to leave the tenant unset")
	}
}
