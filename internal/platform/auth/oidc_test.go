package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	validator *OIDCValidator
	cache     *JWKSCache
	token     string

	mu       sync.Mutex
	requests int
}

func TestJWKSCache_KeyCachesKeys(t *testing.T) {
	fx := setupOIDCTest(t, nil)

	ctx := context.Background()
	got, err := fx.cache.Key(ctx, "svc-key")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}
	if _, err := fx.cache.Key(ctx, "svc-key"); err != nil {
		t.Fatalf("cache.Key second call: %v", err)
	}

	fx.mu.Lock()
	defer fx.mu.Unlock()
	if fx.requests != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", fx.requests)
	}
}

func TestJWKSCache_UnknownKidRefreshesOnce(t *testing.T) {
	fx := setupOIDCTest(t, nil)

	if _, err := fx.cache.Key(context.Background(), "rotated"); err == nil {
		t.Fatalf("expected key not found")
	}
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if fx.requests != 2 {
		t.Fatalf("expected initial fetch plus one refresh, got %d", fx.requests)
	}
}

func TestOIDCRequireOIDC_Success(t *testing.T) {
	fx := setupOIDCTest(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/reservations:sweep", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token)

	fx.validator.RequireOIDC("https://orders.example.com", []string{"https://accounts.google.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := ServiceIdentityFromContext(r.Context())
			if !ok || identity.Email != "scheduler@example.iam.gserviceaccount.com" {
				t.Fatalf("expected service identity in context, got %#v", identity)
			}
			w.WriteHeader(http.StatusNoContent)
		})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestOIDCRequireOIDC_AudienceMismatch(t *testing.T) {
	fx := setupOIDCTest(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/reservations:sweep", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token)

	fx.validator.RequireOIDC("https://other.example.com", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOIDCRequireOIDC_IssuerMismatch(t *testing.T) {
	fx := setupOIDCTest(t, func(claims jwt.MapClaims) {
		claims["iss"] = "https://evil.example.com"
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/notifications:relay", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token)

	fx.validator.RequireOIDC("https://orders.example.com", []string{"https://accounts.google.com"})(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatalf("handler should not be called")
		})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOIDCRequireOIDC_JWKSUnavailable(t *testing.T) {
	fx := setupOIDCTest(t, nil)
	fx.cache.url = "http://127.0.0.1:1/invalid"

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/test", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token)

	fx.validator.RequireOIDC("https://orders.example.com", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestOIDCRequireOIDC_MissingToken(t *testing.T) {
	fx := setupOIDCTest(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/test", nil)

	fx.validator.RequireOIDC("https://orders.example.com", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func setupOIDCTest(t *testing.T, mutateClaims func(jwt.MapClaims)) *oidcFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "svc-key",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	fx := &oidcFixture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.mu.Lock()
		fx.requests++
		fx.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	originalTimeFunc := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = originalTimeFunc })

	fx.cache = NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return now }))
	fx.validator = NewOIDCValidator(fx.cache, nil)

	claims := jwt.MapClaims{
		"aud":   "https://orders.example.com",
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "scheduler@example.iam.gserviceaccount.com",
		"exp":   float64(now.Add(time.Hour).Unix()),
		"iat":   float64(now.Unix()),
	}
	if mutateClaims != nil {
		mutateClaims(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	fx.token = signed
	return fx
}
